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

// DisplayService records survey presentations and serves the per-person
// display history the eligibility checks read.
type DisplayService struct {
	db        *bun.DB
	displays  repository.Repository[*Display]
	responses repository.Repository[*Response]

	cache  cache.CacheService
	keys   cache.KeySerializer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewDisplayService wires a display service over db.
func NewDisplayService(db *bun.DB, cacheService cache.CacheService, keys cache.KeySerializer, logger *slog.Logger) *DisplayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayService{
		db:        db,
		displays:  NewDisplayRepository(db),
		responses: NewResponseRepository(db),
		cache:     cacheService,
		keys:      keys,
		ttl:       DefaultReadTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// ListDisplays returns a person's full display history, oldest first. The
// eligibility checks derive both frequency and recontact answers from this
// one read, so it carries the person-scoped display tag.
func (s *DisplayService) ListDisplays(ctx context.Context, personID string) ([]*Display, error) {
	key := s.keys.SerializeKey("DisplayService.ListDisplays", personID)
	tags := []string{tagging.ByPersonID(tagging.KindDisplay, personID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]*Display, error) {
		records, _, err := s.displays.List(ctx, ByPerson(personID), OrderByCreatedAt())
		if err != nil {
			return nil, &StoreError{Op: "displays.list", Err: err}
		}
		return records, nil
	})
}

// LatestDisplay returns the person's most recent display across all surveys,
// or nil when the person has never been shown one.
func (s *DisplayService) LatestDisplay(ctx context.Context, personID string) (*Display, error) {
	displays, err := s.ListDisplays(ctx, personID)
	if err != nil {
		return nil, err
	}

	var latest *Display
	for _, d := range displays {
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest, nil
}

// CreateDisplay records that a survey was shown to a person.
func (s *DisplayService) CreateDisplay(ctx context.Context, display *Display) (*Display, error) {
	if err := display.Validate(); err != nil {
		return nil, err
	}
	if display.ID == "" {
		display.ID = uuid.NewString()
	}
	display.CreatedAt = s.now()

	if _, err := s.displays.Create(ctx, display); err != nil {
		return nil, &StoreError{Op: "displays.create", Err: err}
	}

	s.invalidate(ctx, displayMutationTags(display))
	return display, nil
}

// LinkResponse marks a display as answered and records the response row in
// one transaction, so the display never points at a response that failed to
// persist.
func (s *DisplayService) LinkResponse(ctx context.Context, displayID string, response *Response) (*Response, error) {
	display, err := s.displays.GetByID(ctx, displayID)
	if err != nil {
		return nil, wrapReadErr("displays.get", "display", displayID, err)
	}

	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	response.CreatedAt = s.now()
	response.SurveyID = display.SurveyID
	if response.PersonID == nil {
		response.PersonID = &display.PersonID
	}

	err = WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.responses.CreateTx(ctx, tx, response); err != nil {
			return &StoreError{Op: "responses.create", Err: err}
		}
		display.ResponseID = &response.ID
		if _, err := s.displays.UpdateTx(ctx, tx, display); err != nil {
			return &StoreError{Op: "displays.update", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tags := displayMutationTags(display)
	tags = append(tags, tagging.Mutation{
		Kind:     tagging.KindResponse,
		ID:       response.ID,
		SurveyID: response.SurveyID,
		PersonID: display.PersonID,
	}.Tags()...)
	s.invalidate(ctx, tags)
	return response, nil
}

// DeleteDisplaysForPerson wipes a person's display history, typically on
// person deletion.
func (s *DisplayService) DeleteDisplaysForPerson(ctx context.Context, personID string) error {
	if err := s.displays.DeleteWhere(ctx, DeleteByPerson(personID)); err != nil {
		return &StoreError{Op: "displays.delete", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:     tagging.KindDisplay,
		PersonID: personID,
	}.Tags())
	return nil
}

func (s *DisplayService) invalidate(ctx context.Context, tags []string) {
	if err := s.cache.InvalidateTags(ctx, tags); err != nil {
		s.logger.Error("cache invalidation failed", "tags", tags, "error", err)
	}
}

func displayMutationTags(display *Display) []string {
	return tagging.Mutation{
		Kind:     tagging.KindDisplay,
		ID:       display.ID,
		PersonID: display.PersonID,
		SurveyID: display.SurveyID,
	}.Tags()
}
