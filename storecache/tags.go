package storecache

import "context"

type cacheTagsKey struct{}

// WithCacheTags attaches extra cache tags to the context. Reads performed
// through a cached repository register under these tags in addition to the
// ones the decorator derives itself, so callers can group entries for bulk
// invalidation across entity kinds.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if len(tags) == 0 {
		return ctx
	}
	existing := cacheTagsFromContext(ctx)
	merged := make([]string, 0, len(existing)+len(tags))
	merged = append(merged, existing...)
	merged = append(merged, tags...)
	return context.WithValue(ctx, cacheTagsKey{}, dedupeStrings(merged))
}

// cacheTagsFromContext returns the tags attached via WithCacheTags, or nil.
func cacheTagsFromContext(ctx context.Context) []string {
	tags, _ := ctx.Value(cacheTagsKey{}).([]string)
	return tags
}

// dedupeStrings returns values with duplicates removed, first occurrence
// wins, order preserved.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
