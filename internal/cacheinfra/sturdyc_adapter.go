package cacheinfra

import (
	"context"
	"reflect"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// sturdycService implements the cache service contract on top of a sturdyc
// client. Values are stored as msgpack-encoded entries and a concurrent tag
// index maps every tag to the keys registered under it, so invalidation by
// tag reaches all entries carrying the tag regardless of key.
type sturdycService struct {
	client *sturdyc.Client[entry]
	tags   *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// NewSturdycService creates a new sturdyc-backed cache service. It validates
// the configuration and initializes the client with the provided settings.
//
// Stampede protection is best effort: sturdyc deduplicates concurrent fetches
// per key, but a per-entry revalidate-after expiry observed by two goroutines
// at once can still trigger two computations.
func NewSturdycService(cfg Config) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.toSturdycOptions()...,
	)

	return &sturdycService{
		client: client,
		tags:   xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}, nil
}

// validateFetchFn ensures fetchFn matches func(context.Context) (T, error).
func validateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return &ConfigError{Field: "fetchFn", Message: "must be a function"}
	}
	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return &ConfigError{Field: "fetchFn", Message: "must have signature func(context.Context) (T, error)"}
	}

	contextType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if !fnType.In(0).Implements(contextType) {
		return &ConfigError{Field: "fetchFn", Message: "first parameter must be context.Context"}
	}

	errorType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errorType) {
		return &ConfigError{Field: "fetchFn", Message: "second return value must be error"}
	}

	return nil
}

// callFetchFn invokes a pre-validated func(context.Context) (T, error).
func callFetchFn(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if rv := results[0]; rv.IsValid() && rv.CanInterface() {
		result = rv.Interface()
	}

	var err error
	if ev := results[1]; ev.IsValid() && !ev.IsNil() {
		err = ev.Interface().(error)
	}

	return result, err
}

// GetOrFetch implements the read-through path. On miss or expiry fetchFn runs
// once (per concurrent key, best effort), its result is msgpack-encoded and
// stored, and the key is registered under every tag. Fetch errors propagate
// and nothing is stored.
//
// Tags are registered when the fetch starts and again after the entry lands,
// so an invalidation racing the store still finds the key in the index. An
// invalidation landing mid-compute can leave one stale entry behind; it stays
// indexed, so the next invalidation or the entry TTL clears it.
func (s *sturdycService) GetOrFetch(ctx context.Context, key string, tags []string, ttl time.Duration, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	resultType := reflect.TypeOf(fetchFn).Out(0)

	fetch := func(ctx context.Context) (entry, error) {
		s.registerTags(key, tags)
		value, err := callFetchFn(ctx, fetchFn)
		if err != nil {
			return entry{}, err
		}
		payload, err := encodeValue(value)
		if err != nil {
			return entry{}, err
		}
		return entry{Payload: payload, StoredAt: time.Now().UTC(), TTL: ttl}, nil
	}

	e, err := s.client.GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, err
	}

	// Per-entry revalidate-after on top of the backend TTL. One refresh
	// attempt; the refetched entry is authoritative either way.
	if e.expired(time.Now().UTC()) {
		s.client.Delete(key)
		e, err = s.client.GetOrFetch(ctx, key, fetch)
		if err != nil {
			return nil, err
		}
	}

	s.registerTags(key, tags)

	return decodeValue(e.Payload, resultType)
}

// registerTags indexes key under each tag so InvalidateTags can find it.
func (s *sturdycService) registerTags(key string, tags []string) {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		keys, _ := s.tags.LoadOrCompute(tag, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		keys.Store(key, struct{}{})
	}
}

// InvalidateTags removes every entry registered under any of the given tags.
// The removal is synchronous: once this returns, subsequent reads refetch.
// Invalidating a tag twice, or a tag that was never used, is a no-op.
func (s *sturdycService) InvalidateTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		keys, ok := s.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		keys.Range(func(key string, _ struct{}) bool {
			s.client.Delete(key)
			return true
		})
	}
	return nil
}

// Delete removes a single entry by key. The key may linger in tag index sets
// until those tags are invalidated; deleting an absent key is harmless.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}
