package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidResultType is returned when a cached value cannot be converted to
// the type requested by the caller.
var ErrInvalidResultType = errors.New("cache: result does not match requested type")

// KeySerializer builds a cache key from an operation name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from
// the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the tag-aware read-through operations the derived
// result layer is built on. Every entry is registered under the tags it was
// fetched with; invalidating a tag evicts all entries carrying it, regardless
// of key. It is exported so other packages can provide alternate backends.
type CacheService interface {
	// GetOrFetch returns the cached value for key when present and not yet
	// past its revalidate-after window, otherwise invokes fetchFn and stores
	// the result. A failed fetch is never stored. ttl <= 0 means the backend
	// default applies.
	GetOrFetch(ctx context.Context, key string, tags []string, ttl time.Duration, fetchFn any) (any, error)

	// InvalidateTags synchronously removes every entry whose tag set
	// intersects tags. Invalidating an unknown tag is a no-op.
	InvalidateTags(ctx context.Context, tags []string) error

	// Delete removes a single entry by key.
	Delete(ctx context.Context, key string) error
}

// GetOrFetch is the type-safe wrapper over CacheService.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, tags []string, ttl time.Duration, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, tags, ttl, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrInvalidResultType, result)
	}
	return typed, nil
}
