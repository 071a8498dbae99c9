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

// PersonService owns people, their attributes, and their action history. The
// segment evaluator consumes all three through this one service.
type PersonService struct {
	db      *bun.DB
	people  repository.Repository[*Person]
	actions repository.Repository[*Action]

	cache  cache.CacheService
	keys   cache.KeySerializer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewPersonService wires a person service over db.
func NewPersonService(db *bun.DB, cacheService cache.CacheService, keys cache.KeySerializer, logger *slog.Logger) *PersonService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonService{
		db:      db,
		people:  NewPersonRepository(db),
		actions: NewActionRepository(db),
		cache:   cacheService,
		keys:    keys,
		ttl:     DefaultReadTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// GetPerson returns one person with their attributes.
func (s *PersonService) GetPerson(ctx context.Context, id string) (*Person, error) {
	key := s.keys.SerializeKey("PersonService.GetPerson", id)
	tags := []string{tagging.ByID(tagging.KindPerson, id)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) (*Person, error) {
		record, err := s.people.GetByID(ctx, id)
		if err != nil {
			return nil, wrapReadErr("people.get", "person", id, err)
		}
		return record, nil
	})
}

// CreatePerson registers a person in an environment.
func (s *PersonService) CreatePerson(ctx context.Context, person *Person) (*Person, error) {
	if person.EnvironmentID == "" {
		return nil, &InvalidInputError{Kind: "person", Reason: errMissingEnvironment}
	}
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	person.CreatedAt = s.now()

	if _, err := s.people.Create(ctx, person); err != nil {
		return nil, &StoreError{Op: "people.create", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:          tagging.KindPerson,
		ID:            person.ID,
		EnvironmentID: person.EnvironmentID,
	}.Tags())
	return person, nil
}

// SetAttributes merges attributes into a person's profile. Existing keys are
// overwritten; keys absent from attrs stay untouched.
func (s *PersonService) SetAttributes(ctx context.Context, personID string, attrs map[string]string) (*Person, error) {
	person, err := s.people.GetByID(ctx, personID)
	if err != nil {
		return nil, wrapReadErr("people.get", "person", personID, err)
	}

	if person.Attributes == nil {
		person.Attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		person.Attributes[k] = v
	}

	if _, err := s.people.Update(ctx, person); err != nil {
		return nil, &StoreError{Op: "people.update", Err: err}
	}

	// Attribute changes flip segment answers, so segment-derived results for
	// this person go stale too.
	tags := tagging.Mutation{
		Kind:          tagging.KindPerson,
		ID:            person.ID,
		EnvironmentID: person.EnvironmentID,
	}.Tags()
	tags = append(tags, tagging.ByPersonID(tagging.KindSegment, person.ID))
	s.invalidate(ctx, tags)
	return person, nil
}

// PerformedActionClassIDs returns the distinct action classes a person has
// triggered, for segment action predicates.
func (s *PersonService) PerformedActionClassIDs(ctx context.Context, personID string) ([]string, error) {
	key := s.keys.SerializeKey("PersonService.PerformedActionClassIDs", personID)
	tags := []string{tagging.ByPersonID(tagging.KindAction, personID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]string, error) {
		records, _, err := s.actions.List(ctx, ByPerson(personID))
		if err != nil {
			return nil, &StoreError{Op: "actions.list", Err: err}
		}

		seen := make(map[string]struct{}, len(records))
		ids := make([]string, 0, len(records))
		for _, action := range records {
			if _, dup := seen[action.ActionClassID]; dup {
				continue
			}
			seen[action.ActionClassID] = struct{}{}
			ids = append(ids, action.ActionClassID)
		}
		return ids, nil
	})
}

// TrackAction records one occurrence of an action class for a person.
func (s *PersonService) TrackAction(ctx context.Context, personID, actionClassID string) (*Action, error) {
	action := &Action{
		ID:            uuid.NewString(),
		CreatedAt:     s.now(),
		PersonID:      personID,
		ActionClassID: actionClassID,
	}

	if _, err := s.actions.Create(ctx, action); err != nil {
		return nil, &StoreError{Op: "actions.create", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:           tagging.KindAction,
		ID:             action.ID,
		PersonID:       personID,
		ActionClassIDs: []string{actionClassID},
	}.Tags())
	return action, nil
}

// DeletePerson removes a person, their actions, and their display history.
func (s *PersonService) DeletePerson(ctx context.Context, id string) error {
	person, err := s.people.GetByID(ctx, id)
	if err != nil {
		return wrapReadErr("people.get", "person", id, err)
	}

	err = WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if err := s.actions.DeleteWhereTx(ctx, tx, DeleteByPerson(id)); err != nil {
			return &StoreError{Op: "actions.delete", Err: err}
		}
		if err := s.people.DeleteTx(ctx, tx, person); err != nil {
			return &StoreError{Op: "people.delete", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	tags := tagging.Mutation{
		Kind:          tagging.KindPerson,
		ID:            id,
		EnvironmentID: person.EnvironmentID,
	}.Tags()
	tags = append(tags,
		tagging.ByPersonID(tagging.KindAction, id),
		tagging.ByPersonID(tagging.KindDisplay, id),
	)
	s.invalidate(ctx, tags)
	return nil
}

func (s *PersonService) invalidate(ctx context.Context, tags []string) {
	if err := s.cache.InvalidateTags(ctx, tags); err != nil {
		s.logger.Error("cache invalidation failed", "tags", tags, "error", err)
	}
}
