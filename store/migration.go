package store

import (
	"context"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-survey-targeting/tagging"
)

// migrationTxTimeout is generous because the reclassification walks every
// legacy survey in one transaction.
const migrationTxTimeout = 30 * time.Second

// MigrationResult summarizes one reclassification run.
type MigrationResult struct {
	AppSurveys      int
	WebsiteSurveys  int
	SegmentsDeleted int
	SegmentsDropped int
}

// ReclassifyLegacyWebSurveys rewrites surveys still carrying the retired
// "web" type. A survey whose latest response came from an identified person
// becomes an app survey; the rest become website surveys, which cannot
// target segments, so their private segments are deleted and shared segment
// references dropped. Orphaned private segments left behind by earlier
// partial runs are removed as well. The whole rewrite is one transaction.
func ReclassifyLegacyWebSurveys(ctx context.Context, db *bun.DB, logger *slog.Logger) (*MigrationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	surveys := NewSurveyRepository(db)
	segments := NewSegmentRepository(db)
	responses := NewResponseRepository(db)

	result := &MigrationResult{}

	err := WithTx(ctx, db, migrationTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		legacy, _, err := surveys.ListTx(ctx, tx, ByType(TypeWeb), WithSurveyRelations())
		if err != nil {
			return &StoreError{Op: "surveys.list", Err: err}
		}

		for _, survey := range legacy {
			latest, err := latestResponseTx(ctx, tx, responses, survey.ID)
			if err != nil {
				return err
			}

			survey.Type = classifyWebSurvey(latest)
			if survey.Type == TypeWebsite && survey.SegmentID != nil {
				if survey.Segment != nil && survey.Segment.IsPrivate {
					if err := segments.DeleteTx(ctx, tx, survey.Segment); err != nil {
						return &StoreError{Op: "segments.delete", Err: err}
					}
					result.SegmentsDeleted++
				} else {
					result.SegmentsDropped++
				}
				survey.SegmentID = nil
				survey.Segment = nil
			}

			if _, err := surveys.UpdateTx(ctx, tx, survey); err != nil {
				return &StoreError{Op: "surveys.update", Err: err}
			}

			if survey.Type == TypeApp {
				result.AppSurveys++
			} else {
				result.WebsiteSurveys++
			}
		}

		// Private segments are titled with their owning survey's id; one with
		// no surviving reference is residue from an interrupted earlier run.
		orphans, _, err := segments.ListTx(ctx, tx, PrivateOnly())
		if err != nil {
			return &StoreError{Op: "segments.list", Err: err}
		}
		for _, orphan := range orphans {
			count, err := surveys.CountTx(ctx, tx, BySegment(orphan.ID))
			if err != nil {
				return &StoreError{Op: "surveys.count", Err: err}
			}
			if count == 0 {
				if err := segments.DeleteTx(ctx, tx, orphan); err != nil {
					return &StoreError{Op: "segments.delete", Err: err}
				}
				result.SegmentsDeleted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("legacy web surveys reclassified",
		"app", result.AppSurveys,
		"website", result.WebsiteSurveys,
		"segments_deleted", result.SegmentsDeleted,
		"segments_dropped", result.SegmentsDropped,
	)
	return result, nil
}

// InvalidationTags returns the tags a completed migration run staled. The
// rewrite touches surveys and segments across environments, so both kinds are
// flushed wholesale.
func (r *MigrationResult) InvalidationTags() []string {
	return []string{
		tagging.All(tagging.KindSurvey),
		tagging.All(tagging.KindSegment),
	}
}

// classifyWebSurvey decides the replacement type from the survey's latest
// response. Identified traffic means the survey ran inside a product, so it
// becomes an app survey; anonymous or absent traffic means a public website.
func classifyWebSurvey(latest *Response) SurveyType {
	if latest != nil && latest.PersonID != nil && *latest.PersonID != "" {
		return TypeApp
	}
	return TypeWebsite
}

func latestResponseTx(ctx context.Context, tx bun.Tx, responses repository.Repository[*Response], surveyID string) (*Response, error) {
	records, _, err := responses.ListTx(ctx, tx, BySurvey(surveyID), OrderByCreatedAtDesc(), WithPage(1, 0))
	if err != nil {
		return nil, &StoreError{Op: "responses.list", Err: err}
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
