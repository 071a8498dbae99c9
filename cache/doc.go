// Package cache provides the derived-result cache front used by the survey
// targeting layer: a tag-aware read-through CacheService and a deterministic
// KeySerializer.
//
// # Overview
//
//   - CacheService: read-through caching keyed by operation key + tag set,
//     with synchronous invalidation by tag
//   - KeySerializer: builds stable cache keys from operation names and
//     arguments
//
// Entries are registered under the tags passed to GetOrFetch. Invalidating a
// tag evicts every entry that carries it, independent of key, which is how
// mutations on one entity (a survey, a segment, a person's displays) evict
// all reads derived from it. Tags are built by the tagging package so the
// population side and the invalidation side always agree byte for byte.
//
// # Basic Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("ListByEnvironment", environmentID)
//
//	surveys, err := cache.GetOrFetch(ctx, service, key,
//		[]string{tagging.ByEnvironmentID(tagging.KindSurvey, environmentID)},
//		30*time.Second,
//		func(ctx context.Context) ([]*store.Survey, error) {
//			return repo.List(ctx, store.ByEnvironment(environmentID))
//		})
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection:
//
//   - time.Time: UTC RFC3339Nano rendering, so equal instants match
//   - Basic types: direct string representation
//   - Slices/arrays: recursive serialization of elements
//   - Maps: pairs sorted by serialized key for deterministic output
//   - Structs: exported fields as name:value pairs
//   - fmt.Stringer (uuid.UUID and friends): String()
//   - Function pointers: %p formatting, stable only within one process
//   - Anything else: JSON fallback
//
// Keys longer than 512 bytes are replaced by the operation name plus an
// xxhash digest of the full rendering.
//
// # Structural Fidelity
//
// Cached values round-trip through msgpack in the backend adapter. Date and
// time fields come back as time.Time, not strings, and every hit decodes into
// a fresh value, so callers mutating a returned slice or struct cannot
// corrupt the cached copy.
//
// # Error Handling
//
// Fetch errors are returned to the caller and never stored, so a failed
// computation cannot poison the cache. Key serialization prioritizes
// stability over perfection: when JSON marshaling fails it falls back to type
// information rather than panicking.
package cache
