package store

import (
	"context"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/tagging"
)

// DefaultReadTTL bounds how stale a cached read may get when invalidation is
// missed, for example after a process restart that lost the tag index.
const DefaultReadTTL = 5 * time.Minute

// SurveyListOptions narrows and pages a survey search.
type SurveyListOptions struct {
	Status SurveyStatus
	Type   SurveyType
	Query  string
	SortBy string // "createdAt" or "updatedAt", default "createdAt"
	Limit  int
	Offset int
}

// SurveyService owns survey reads and writes. Reads go through the tag-aware
// cache; writes run transactionally and invalidate the affected tags only
// after the transaction commits.
type SurveyService struct {
	db        *bun.DB
	surveys   repository.Repository[*Survey]
	segments  repository.Repository[*Segment]
	triggers  repository.Repository[*SurveyTrigger]
	languages repository.Repository[*SurveyLanguage]
	displays  repository.Repository[*Display]
	responses repository.Repository[*Response]

	cache  cache.CacheService
	keys   cache.KeySerializer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSurveyService wires a survey service over db. The cache service and key
// serializer come from the DI container so every service shares one tag
// index.
func NewSurveyService(db *bun.DB, cacheService cache.CacheService, keys cache.KeySerializer, logger *slog.Logger) *SurveyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurveyService{
		db:        db,
		surveys:   NewSurveyRepository(db),
		segments:  NewSegmentRepository(db),
		triggers:  NewTriggerRepository(db),
		languages: NewSurveyLanguageRepository(db),
		displays:  NewDisplayRepository(db),
		responses: NewResponseRepository(db),
		cache:     cacheService,
		keys:      keys,
		ttl:       DefaultReadTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// GetSurvey returns one survey with its segment, triggers, and languages.
func (s *SurveyService) GetSurvey(ctx context.Context, id string) (*Survey, error) {
	key := s.keys.SerializeKey("SurveyService.GetSurvey", id)
	tags := []string{tagging.ByID(tagging.KindSurvey, id)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) (*Survey, error) {
		record, err := s.surveys.GetByID(ctx, id, WithSurveyRelations())
		if err != nil {
			return nil, wrapReadErr("surveys.get", "survey", id, err)
		}
		return record, nil
	})
}

// ListSurveys returns every survey in an environment, oldest first.
func (s *SurveyService) ListSurveys(ctx context.Context, environmentID string) ([]*Survey, error) {
	key := s.keys.SerializeKey("SurveyService.ListSurveys", environmentID)
	tags := []string{tagging.ByEnvironmentID(tagging.KindSurvey, environmentID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]*Survey, error) {
		records, _, err := s.surveys.List(ctx,
			ByEnvironment(environmentID),
			WithSurveyRelations(),
			OrderByCreatedAt(),
		)
		if err != nil {
			return nil, &StoreError{Op: "surveys.list", Err: err}
		}
		return records, nil
	})
}

// SearchSurveys filters, sorts, and pages surveys inside one environment.
func (s *SurveyService) SearchSurveys(ctx context.Context, environmentID string, opts SurveyListOptions) ([]*Survey, error) {
	key := s.keys.SerializeKey("SurveyService.SearchSurveys", environmentID, opts)
	tags := []string{tagging.ByEnvironmentID(tagging.KindSurvey, environmentID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]*Survey, error) {
		criteria := []repository.SelectCriteria{ByEnvironment(environmentID), WithSurveyRelations()}
		if opts.Status != "" {
			criteria = append(criteria, ByStatus(opts.Status))
		}
		if opts.Type != "" {
			criteria = append(criteria, ByType(opts.Type))
		}
		if opts.Query != "" {
			criteria = append(criteria, NameMatches(opts.Query))
		}
		if opts.SortBy == "updatedAt" {
			criteria = append(criteria, OrderByUpdatedAtDesc())
		} else {
			criteria = append(criteria, OrderByCreatedAt())
		}
		criteria = append(criteria, WithPage(opts.Limit, opts.Offset))

		records, _, err := s.surveys.List(ctx, criteria...)
		if err != nil {
			return nil, &StoreError{Op: "surveys.search", Err: err}
		}
		return records, nil
	})
}

// CountSurveys returns the number of surveys in an environment.
func (s *SurveyService) CountSurveys(ctx context.Context, environmentID string) (int, error) {
	key := s.keys.SerializeKey("SurveyService.CountSurveys", environmentID)
	tags := []string{tagging.ByEnvironmentID(tagging.KindSurvey, environmentID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) (int, error) {
		count, err := s.surveys.Count(ctx, ByEnvironment(environmentID))
		if err != nil {
			return 0, &StoreError{Op: "surveys.count", Err: err}
		}
		return count, nil
	})
}

// CreateSurvey persists a new survey with its trigger and language bindings.
// An app survey without a segment gets a fresh private segment so targeting
// always has somewhere to hang filters.
func (s *SurveyService) CreateSurvey(ctx context.Context, survey *Survey) (*Survey, error) {
	now := s.now()
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	survey.CreatedAt = now
	survey.UpdatedAt = now

	survey.Normalize(now)
	if err := survey.Validate(now); err != nil {
		return nil, err
	}

	var privateSegment *Segment
	if survey.Type == TypeApp && survey.SegmentID == nil {
		privateSegment = &Segment{
			ID:            uuid.NewString(),
			CreatedAt:     now,
			UpdatedAt:     now,
			Title:         survey.ID,
			EnvironmentID: survey.EnvironmentID,
			IsPrivate:     true,
		}
		survey.SegmentID = &privateSegment.ID
	}

	err := WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if privateSegment != nil {
			if _, err := s.segments.CreateTx(ctx, tx, privateSegment); err != nil {
				return &StoreError{Op: "segments.create", Err: err}
			}
		}
		if _, err := s.surveys.CreateTx(ctx, tx, survey); err != nil {
			return &StoreError{Op: "surveys.create", Err: err}
		}
		if err := s.createBindingsTx(ctx, tx, survey, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSurvey(ctx, survey, nil)
	return survey, nil
}

// UpdateSurvey replaces a survey and its bindings. Trigger and language rows
// are rewritten wholesale; partial binding edits are not a thing at this
// layer.
func (s *SurveyService) UpdateSurvey(ctx context.Context, survey *Survey) (*Survey, error) {
	existing, err := s.surveys.GetByID(ctx, survey.ID, WithSurveyRelations())
	if err != nil {
		return nil, wrapReadErr("surveys.get", "survey", survey.ID, err)
	}

	now := s.now()
	survey.EnvironmentID = existing.EnvironmentID
	survey.CreatedAt = existing.CreatedAt
	survey.UpdatedAt = now

	survey.Normalize(now)
	if err := survey.Validate(now); err != nil {
		return nil, err
	}

	err = WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.surveys.UpdateTx(ctx, tx, survey); err != nil {
			return &StoreError{Op: "surveys.update", Err: err}
		}
		if err := s.triggers.DeleteWhereTx(ctx, tx, DeleteBySurvey(survey.ID)); err != nil {
			return &StoreError{Op: "triggers.delete", Err: err}
		}
		if err := s.languages.DeleteWhereTx(ctx, tx, DeleteBySurvey(survey.ID)); err != nil {
			return &StoreError{Op: "languages.delete", Err: err}
		}
		return s.createBindingsTx(ctx, tx, survey, now)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSurvey(ctx, survey, existing)
	return survey, nil
}

// DeleteSurvey removes a survey and everything it exclusively owns: trigger
// and language bindings, its displays and responses, and its private segment.
func (s *SurveyService) DeleteSurvey(ctx context.Context, id string) error {
	existing, err := s.surveys.GetByID(ctx, id, WithSurveyRelations())
	if err != nil {
		return wrapReadErr("surveys.get", "survey", id, err)
	}

	err = WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if err := s.triggers.DeleteWhereTx(ctx, tx, DeleteBySurvey(id)); err != nil {
			return &StoreError{Op: "triggers.delete", Err: err}
		}
		if err := s.languages.DeleteWhereTx(ctx, tx, DeleteBySurvey(id)); err != nil {
			return &StoreError{Op: "languages.delete", Err: err}
		}
		if err := s.displays.DeleteWhereTx(ctx, tx, DeleteBySurvey(id)); err != nil {
			return &StoreError{Op: "displays.delete", Err: err}
		}
		if err := s.responses.DeleteWhereTx(ctx, tx, DeleteBySurvey(id)); err != nil {
			return &StoreError{Op: "responses.delete", Err: err}
		}
		if err := s.surveys.DeleteTx(ctx, tx, existing); err != nil {
			return &StoreError{Op: "surveys.delete", Err: err}
		}
		if existing.Segment != nil && existing.Segment.IsPrivate {
			if err := s.segments.DeleteTx(ctx, tx, existing.Segment); err != nil {
				return &StoreError{Op: "segments.delete", Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	tags := surveyMutationTags(existing, existing)
	tags = append(tags, tagging.All(tagging.KindDisplay), tagging.All(tagging.KindResponse))
	if existing.Segment != nil && existing.Segment.IsPrivate {
		tags = append(tags, tagging.Mutation{
			Kind:          tagging.KindSegment,
			ID:            existing.Segment.ID,
			EnvironmentID: existing.EnvironmentID,
		}.Tags()...)
	}
	s.invalidate(ctx, tags)
	return nil
}

func (s *SurveyService) createBindingsTx(ctx context.Context, tx bun.Tx, survey *Survey, now time.Time) error {
	for _, trigger := range survey.Triggers {
		if trigger.ID == "" {
			trigger.ID = uuid.NewString()
		}
		trigger.SurveyID = survey.ID
		if _, err := s.triggers.CreateTx(ctx, tx, trigger); err != nil {
			return &StoreError{Op: "triggers.create", Err: err}
		}
	}
	for _, language := range survey.Languages {
		if language.ID == "" {
			language.ID = uuid.NewString()
		}
		language.SurveyID = survey.ID
		if _, err := s.languages.CreateTx(ctx, tx, language); err != nil {
			return &StoreError{Op: "languages.create", Err: err}
		}
	}
	return nil
}

// invalidateSurvey evicts everything a survey write staled. previous may be
// nil on create; on update it contributes the bindings the write detached.
func (s *SurveyService) invalidateSurvey(ctx context.Context, survey, previous *Survey) {
	s.invalidate(ctx, surveyMutationTags(survey, previous))
}

func (s *SurveyService) invalidate(ctx context.Context, tags []string) {
	if err := s.cache.InvalidateTags(ctx, tags); err != nil {
		s.logger.Error("cache invalidation failed", "tags", tags, "error", err)
	}
}

// surveyMutationTags folds the current and previous versions of a survey into
// one tag set so readers keyed on detached segments or triggers also refresh.
func surveyMutationTags(survey, previous *Survey) []string {
	mutation := tagging.Mutation{
		Kind:          tagging.KindSurvey,
		ID:            survey.ID,
		EnvironmentID: survey.EnvironmentID,
		SurveyID:      survey.ID,
	}
	if survey.SegmentID != nil {
		mutation.SegmentID = *survey.SegmentID
	}
	for _, trigger := range survey.Triggers {
		mutation.ActionClassIDs = append(mutation.ActionClassIDs, trigger.ActionClassID)
	}

	tags := mutation.Tags()
	if previous != nil {
		prior := tagging.Mutation{
			Kind:          tagging.KindSurvey,
			ID:            previous.ID,
			EnvironmentID: previous.EnvironmentID,
			SurveyID:      previous.ID,
		}
		if previous.SegmentID != nil {
			prior.SegmentID = *previous.SegmentID
		}
		for _, trigger := range previous.Triggers {
			prior.ActionClassIDs = append(prior.ActionClassIDs, trigger.ActionClassID)
		}
		tags = append(tags, prior.Tags()...)
	}
	return tags
}
