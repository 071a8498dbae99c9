package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/tagging"
)

// SegmentService owns segment reads and writes. A segment edit invalidates
// the segment's own tags plus every survey that references it, since those
// surveys' targeting answers changed too.
type SegmentService struct {
	db       *bun.DB
	segments repository.Repository[*Segment]
	surveys  repository.Repository[*Survey]

	cache  cache.CacheService
	keys   cache.KeySerializer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSegmentService wires a segment service over db.
func NewSegmentService(db *bun.DB, cacheService cache.CacheService, keys cache.KeySerializer, logger *slog.Logger) *SegmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentService{
		db:       db,
		segments: NewSegmentRepository(db),
		surveys:  NewSurveyRepository(db),
		cache:    cacheService,
		keys:     keys,
		ttl:      DefaultReadTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// GetSegment returns one segment.
func (s *SegmentService) GetSegment(ctx context.Context, id string) (*Segment, error) {
	key := s.keys.SerializeKey("SegmentService.GetSegment", id)
	tags := []string{tagging.ByID(tagging.KindSegment, id)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) (*Segment, error) {
		record, err := s.segments.GetByID(ctx, id)
		if err != nil {
			return nil, wrapReadErr("segments.get", "segment", id, err)
		}
		return record, nil
	})
}

// ListSegments returns the shared segments of an environment. Private
// segments belong to one survey and are never listed.
func (s *SegmentService) ListSegments(ctx context.Context, environmentID string) ([]*Segment, error) {
	key := s.keys.SerializeKey("SegmentService.ListSegments", environmentID)
	tags := []string{tagging.ByEnvironmentID(tagging.KindSegment, environmentID)}

	return cache.GetOrFetch(ctx, s.cache, key, tags, s.ttl, func(ctx context.Context) ([]*Segment, error) {
		records, _, err := s.segments.List(ctx,
			ByEnvironment(environmentID),
			SharedOnly(),
			OrderByCreatedAt(),
		)
		if err != nil {
			return nil, &StoreError{Op: "segments.list", Err: err}
		}
		return records, nil
	})
}

// CreateSegment persists a new shared segment.
func (s *SegmentService) CreateSegment(ctx context.Context, segment *Segment) (*Segment, error) {
	now := s.now()
	if segment.ID == "" {
		segment.ID = uuid.NewString()
	}
	segment.CreatedAt = now
	segment.UpdatedAt = now

	if err := segment.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.segments.Create(ctx, segment); err != nil {
		return nil, &StoreError{Op: "segments.create", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:          tagging.KindSegment,
		ID:            segment.ID,
		EnvironmentID: segment.EnvironmentID,
	}.Tags())
	return segment, nil
}

// UpdateSegment replaces a segment's filters and metadata, then invalidates
// every survey whose eligibility answers flowed through it.
func (s *SegmentService) UpdateSegment(ctx context.Context, segment *Segment) (*Segment, error) {
	existing, err := s.segments.GetByID(ctx, segment.ID)
	if err != nil {
		return nil, wrapReadErr("segments.get", "segment", segment.ID, err)
	}

	segment.EnvironmentID = existing.EnvironmentID
	segment.IsPrivate = existing.IsPrivate
	segment.CreatedAt = existing.CreatedAt
	segment.UpdatedAt = s.now()

	if err := segment.Validate(); err != nil {
		return nil, err
	}

	referencing, _, err := s.surveys.List(ctx, BySegment(segment.ID))
	if err != nil {
		return nil, &StoreError{Op: "surveys.list", Err: err}
	}

	if _, err := s.segments.Update(ctx, segment); err != nil {
		return nil, &StoreError{Op: "segments.update", Err: err}
	}

	tags := tagging.Mutation{
		Kind:          tagging.KindSegment,
		ID:            segment.ID,
		EnvironmentID: segment.EnvironmentID,
	}.Tags()
	for _, survey := range referencing {
		tags = append(tags, tagging.Mutation{
			Kind:          tagging.KindSurvey,
			ID:            survey.ID,
			EnvironmentID: survey.EnvironmentID,
			SegmentID:     segment.ID,
		}.Tags()...)
	}
	s.invalidate(ctx, tags)
	return segment, nil
}

// DeleteSegment removes a shared segment. Surveys still referencing it keep
// their foreign key until edited, so deletion is refused while references
// exist.
func (s *SegmentService) DeleteSegment(ctx context.Context, id string) error {
	existing, err := s.segments.GetByID(ctx, id)
	if err != nil {
		return wrapReadErr("segments.get", "segment", id, err)
	}

	count, err := s.surveys.Count(ctx, BySegment(id))
	if err != nil {
		return &StoreError{Op: "surveys.count", Err: err}
	}
	if count > 0 {
		return &ConflictError{Kind: "segment", Detail: fmt.Sprintf("still referenced by %d surveys", count)}
	}

	if err := s.segments.Delete(ctx, existing); err != nil {
		return &StoreError{Op: "segments.delete", Err: err}
	}

	s.invalidate(ctx, tagging.Mutation{
		Kind:          tagging.KindSegment,
		ID:            id,
		EnvironmentID: existing.EnvironmentID,
	}.Tags())
	return nil
}

func (s *SegmentService) invalidate(ctx context.Context, tags []string) {
	if err := s.cache.InvalidateTags(ctx, tags); err != nil {
		s.logger.Error("cache invalidation failed", "tags", tags, "error", err)
	}
}
