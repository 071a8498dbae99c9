package storecache

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/tagging"
)

// TaggerFunc derives the mutation descriptor for a record, so writes know
// which tags to invalidate. The decorator fills in the kind; the tagger only
// needs to surface the record's id and foreign keys.
type TaggerFunc[T any] func(record T) tagging.Mutation

// CachedRepository decorates a go-repository-bun repository with tag-aware
// read-through caching. It implements repository.Repository[T], so it drops
// in wherever the base repository is used.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	kind          tagging.Kind
	tagger        TaggerFunc[T]
	ttl           time.Duration
	namespace     string
}

// listResult bundles the items and total of a List call into one cache
// entry, so both come back from a single lookup.
type listResult[T any] struct {
	Items []T `msgpack:"i"`
	Total int `msgpack:"t"`
}

// New creates a cached repository decorator. kind namespaces the keys and
// anchors the kind-wide tag; tagger may be nil, in which case writes
// invalidate the kind-wide tag only.
func New[T any](
	base repository.Repository[T],
	cacheService cache.CacheService,
	keySerializer cache.KeySerializer,
	kind tagging.Kind,
	tagger TaggerFunc[T],
	ttl time.Duration,
) *CachedRepository[T] {
	return &CachedRepository[T]{
		base:          base,
		cacheService:  cacheService,
		keySerializer: keySerializer,
		kind:          kind,
		tagger:        tagger,
		ttl:           ttl,
		namespace:     toSnake(string(kind)),
	}
}

func (c *CachedRepository[T]) key(method string, args ...any) string {
	return c.keySerializer.SerializeKey(c.namespace+"."+method, args...)
}

// readTags merges the decorator-derived tags with any request-scoped tags
// from the context.
func (c *CachedRepository[T]) readTags(ctx context.Context, derived ...string) []string {
	tags := append(derived, tagging.All(c.kind))
	tags = append(tags, cacheTagsFromContext(ctx)...)
	return dedupeStrings(tags)
}

func (c *CachedRepository[T]) recordTags(record T) []string {
	if c.tagger == nil {
		return []string{tagging.All(c.kind)}
	}
	mutation := c.tagger(record)
	if mutation.Kind == "" {
		mutation.Kind = c.kind
	}
	return mutation.Tags()
}

func (c *CachedRepository[T]) recordsTags(records []T) []string {
	if c.tagger == nil || len(records) == 0 {
		return []string{tagging.All(c.kind)}
	}
	var tags []string
	for _, record := range records {
		tags = append(tags, c.recordTags(record)...)
	}
	return dedupeStrings(tags)
}

func criteriaArgs[C any](criteria []C) []any {
	args := make([]any, len(criteria))
	for i, crit := range criteria {
		args[i] = crit
	}
	return args
}

// Get caches the first record matching the criteria. Criteria enter the key
// by pointer, so cross-call hits need shared criteria values.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("get", criteriaArgs(criteria)...)
	return cache.GetOrFetch(ctx, c.cacheService, key, c.readTags(ctx), c.ttl, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID caches a by-id lookup under the record's own tag.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("get_by_id", append([]any{id}, criteriaArgs(criteria)...)...)
	tags := c.readTags(ctx, tagging.ByID(c.kind, id))
	return cache.GetOrFetch(ctx, c.cacheService, key, tags, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List caches the matched records together with the total count.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key := c.key("list", criteriaArgs(criteria)...)
	result, err := cache.GetOrFetch(ctx, c.cacheService, key, c.readTags(ctx), c.ttl, func(ctx context.Context) (listResult[T], error) {
		items, total, err := c.base.List(ctx, criteria...)
		if err != nil {
			return listResult[T]{}, err
		}
		return listResult[T]{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result.Items, result.Total, nil
}

// Count caches the match count.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key := c.key("count", criteriaArgs(criteria)...)
	return cache.GetOrFetch(ctx, c.cacheService, key, c.readTags(ctx), c.ttl, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier caches a natural-key lookup.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("get_by_identifier", append([]any{identifier}, criteriaArgs(criteria)...)...)
	return cache.GetOrFetch(ctx, c.cacheService, key, c.readTags(ctx), c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create writes through and invalidates the record's tags.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidate(ctx, c.recordTags(result))
}

// CreateTx passes through; the owning transaction invalidates after commit.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.base.CreateTx(ctx, tx, record, criteria...)
}

// CreateMany writes through and invalidates every created record's tags.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	results, err := c.base.CreateMany(ctx, records, criteria...)
	if err != nil {
		return results, err
	}
	return results, c.invalidate(ctx, c.recordsTags(results))
}

// CreateManyTx passes through.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.base.CreateManyTx(ctx, tx, records, criteria...)
}

// GetOrCreate writes through and invalidates, since it may have created.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err != nil {
		return result, err
	}
	return result, c.invalidate(ctx, c.recordTags(result))
}

// GetOrCreateTx passes through.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return c.base.GetOrCreateTx(ctx, tx, record)
}

// Update writes through and invalidates the record's tags.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidate(ctx, c.recordTags(result))
}

// UpdateTx passes through.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.base.UpdateTx(ctx, tx, record, criteria...)
}

// UpdateMany writes through and invalidates every updated record's tags.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	results, err := c.base.UpdateMany(ctx, records, criteria...)
	if err != nil {
		return results, err
	}
	return results, c.invalidate(ctx, c.recordsTags(results))
}

// UpdateManyTx passes through.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.base.UpdateManyTx(ctx, tx, records, criteria...)
}

// Upsert writes through and invalidates the record's tags.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidate(ctx, c.recordTags(result))
}

// UpsertTx passes through.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.base.UpsertTx(ctx, tx, record, criteria...)
}

// UpsertMany writes through and invalidates every record's tags.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	results, err := c.base.UpsertMany(ctx, records, criteria...)
	if err != nil {
		return results, err
	}
	return results, c.invalidate(ctx, c.recordsTags(results))
}

// UpsertManyTx passes through.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.base.UpsertManyTx(ctx, tx, records, criteria...)
}

// Delete removes the record and invalidates its tags.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	if err := c.base.Delete(ctx, record); err != nil {
		return err
	}
	return c.invalidate(ctx, c.recordTags(record))
}

// DeleteTx passes through.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.base.DeleteTx(ctx, tx, record)
}

// DeleteMany removes by criteria; the affected records are unknown, so the
// whole kind is invalidated.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteMany(ctx, criteria...); err != nil {
		return err
	}
	return c.invalidateKind(ctx)
}

// DeleteManyTx passes through.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.base.DeleteManyTx(ctx, tx, criteria...)
}

// DeleteWhere removes by criteria and invalidates the whole kind.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteWhere(ctx, criteria...); err != nil {
		return err
	}
	return c.invalidateKind(ctx)
}

// DeleteWhereTx passes through.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.base.DeleteWhereTx(ctx, tx, criteria...)
}

// ForceDelete removes the record permanently and invalidates its tags.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	if err := c.base.ForceDelete(ctx, record); err != nil {
		return err
	}
	return c.invalidate(ctx, c.recordTags(record))
}

// ForceDeleteTx passes through.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.base.ForceDeleteTx(ctx, tx, record)
}

// GetTx passes through; transactional reads must see the transaction's own
// writes, which the cache cannot.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx passes through.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx passes through.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx passes through.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx passes through.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw passes through uncached; arbitrary SQL has no derivable tag set.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx passes through.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository.
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

func (c *CachedRepository[T]) invalidate(ctx context.Context, tags []string) error {
	return c.cacheService.InvalidateTags(ctx, tags)
}

func (c *CachedRepository[T]) invalidateKind(ctx context.Context) error {
	return c.cacheService.InvalidateTags(ctx, []string{tagging.All(c.kind)})
}

// Interface assertion so a drifting base interface fails the build here.
var _ repository.Repository[any] = (*CachedRepository[any])(nil)
