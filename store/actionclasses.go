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

// ActionClassService owns the action class catalog of an environment.
type ActionClassService struct {
	db       *bun.DB
	classes  repository.Repository[*ActionClass]
	triggers repository.Repository[*SurveyTrigger]

	cache  cache.CacheService
	keys   cache.KeySerializer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewActionClassService wires an action class service over db.
func NewActionClassService(db *bun.DB, cacheService cache.CacheService, keys cache.KeySerializer, logger *slog.Logger) *ActionClassService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionClassService{
		db:       db,
		classes:  NewActionClassRepository(db),
		triggers: NewTriggerRepository(db),
		cache:    cacheService,
		keys:     keys,
		ttl:      DefaultReadTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// GetActionClass returns one action class.
func (s *ActionClassService) GetActionClass(ctx context.Context, id string) (*ActionClass, error) {
	key := s.keys.SerializeKey("ActionClassService.GetActionClass", id)
	tags := []string{tagging.ByID(tagging.KindActionClass, id)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) (*ActionClass, error) {
		record, err := s.classes.GetByID(ctx, id)
		if err != nil {
			return nil, wrapReadErr("actionClasses.get", "action class", id, err)
		}
		return record, nil
	})
}

// ListActionClasses returns every action class in an environment.
func (s *ActionClassService) ListActionClasses(ctx context.Context, environmentID string) ([]*ActionClass, error) {
	key := s.keys.SerializeKey("ActionClassService.ListActionClasses", environmentID)
	tags := []string{tagging.ByEnvironmentID(tagging.KindActionClass, environmentID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]*ActionClass, error) {
		records, _, err := s.classes.List(ctx, ByEnvironment(environmentID), OrderByCreatedAt())
		if err != nil {
			return nil, &StoreError{Op: "actionClasses.list", Err: err}
		}
		return records, nil
	})
}

// CreateActionClass registers a new action class.
func (s *ActionClassService) CreateActionClass(ctx context.Context, class *ActionClass) (*ActionClass, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = s.now()

	if _, err := s.classes.Create(ctx, class); err != nil {
		return nil, &StoreError{Op: "actionClasses.create", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:          tagging.KindActionClass,
		ID:            class.ID,
		EnvironmentID: class.EnvironmentID,
	}.Tags())
	return class, nil
}

// DeleteActionClass removes an action class and the survey triggers bound to
// it. Surveys that lose a trigger stop firing on the action, so every survey
// referencing the class is invalidated too.
func (s *ActionClassService) DeleteActionClass(ctx context.Context, id string) error {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return wrapReadErr("actionClasses.get", "action class", id, err)
	}

	bound, _, err := s.triggers.List(ctx, ByActionClass(id))
	if err != nil {
		return &StoreError{Op: "triggers.list", Err: err}
	}

	err = WithTx(ctx, s.db, DefaultTxTimeout, func(ctx context.Context, tx bun.Tx) error {
		if err := s.triggers.DeleteWhereTx(ctx, tx, DeleteByActionClass(id)); err != nil {
			return &StoreError{Op: "triggers.delete", Err: err}
		}
		if err := s.classes.DeleteTx(ctx, tx, class); err != nil {
			return &StoreError{Op: "actionClasses.delete", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	tags := tagging.Mutation{
		Kind:           tagging.KindActionClass,
		ID:             id,
		EnvironmentID:  class.EnvironmentID,
		ActionClassIDs: []string{id},
	}.Tags()
	for _, trigger := range bound {
		tags = append(tags, tagging.Mutation{
			Kind:           tagging.KindSurvey,
			ID:             trigger.SurveyID,
			EnvironmentID:  class.EnvironmentID,
			SurveyID:       trigger.SurveyID,
			ActionClassIDs: []string{id},
		}.Tags()...)
	}
	s.invalidate(ctx, tags)
	return nil
}

func (s *ActionClassService) invalidate(ctx context.Context, tags []string) {
	if err := s.cache.InvalidateTags(ctx, tags); err != nil {
		s.logger.Error("cache invalidation failed", "tags", tags, "error", err)
	}
}
