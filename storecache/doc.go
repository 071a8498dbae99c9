// Package storecache provides a tag-aware cached decorator for
// go-repository-bun repositories.
//
// The decorator wraps any repository.Repository[T] and serves reads through
// the shared cache service. Every cached read is registered under the tags
// that describe what it was derived from: the record tag for by-id reads and
// the kind-wide tag for criteria reads, plus any request-scoped tags carried
// in the context via WithCacheTags. Writes derive the affected tag set from
// the record through the repository's tagger and invalidate it before
// returning.
//
// Transactional method variants pass straight through to the base repository
// without touching the cache. Invalidation inside an open transaction would
// let a concurrent reader repopulate the cache from the pre-commit snapshot,
// so the owning service fires invalidation after its transaction commits.
//
// Criteria-based reads embed the criteria functions in the cache key by
// pointer, so only criteria-free calls and by-id lookups cache across call
// sites. That matches how the eligibility path uses the decorator: hot
// lookups are by id.
package storecache
