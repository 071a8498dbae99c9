package cacheinfra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Capacity:           1000,
		NumShards:          8,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	}
}

type testRecord struct {
	ID        string    `msgpack:"id"`
	Name      string    `msgpack:"name"`
	CreatedAt time.Time `msgpack:"created_at"`
}

func TestNewSturdycService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero capacity", Config{NumShards: 8, TTL: time.Minute, EvictionPercentage: 10}},
		{"zero shards", Config{Capacity: 100, TTL: time.Minute, EvictionPercentage: 10}},
		{"zero ttl", Config{Capacity: 100, NumShards: 8, EvictionPercentage: 10}},
		{"bad eviction percentage", Config{Capacity: 100, NumShards: 8, TTL: time.Minute, EvictionPercentage: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSturdycService(tt.cfg); err == nil {
				t.Error("expected config error, got nil")
			}
		})
	}
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var calls int32
	fetch := func(ctx context.Context) (testRecord, error) {
		atomic.AddInt32(&calls, 1)
		return testRecord{ID: "r1", Name: "first"}, nil
	}

	ctx := context.Background()

	got, err := svc.GetOrFetch(ctx, "k1", []string{"surveys-r1"}, 0, fetch)
	if err != nil {
		t.Fatalf("first GetOrFetch failed: %v", err)
	}
	if rec := got.(testRecord); rec.Name != "first" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, err := svc.GetOrFetch(ctx, "k1", []string{"surveys-r1"}, 0, fetch); err != nil {
		t.Fatalf("second GetOrFetch failed: %v", err)
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", n)
	}
}

func TestGetOrFetch_TimeFieldsSurviveRoundTrip(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	created := time.Date(2025, 6, 15, 9, 30, 0, 123456789, time.UTC)
	fetch := func(ctx context.Context) (testRecord, error) {
		return testRecord{ID: "r1", CreatedAt: created}, nil
	}

	ctx := context.Background()
	if _, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	// Second call is served from cache; the date must come back as time.Time
	// with the same instant, not a string.
	got, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch)
	if err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	rec, ok := got.(testRecord)
	if !ok {
		t.Fatalf("cached value has wrong type: %T", got)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt degraded through the cache: got %v, want %v", rec.CreatedAt, created)
	}
}

func TestGetOrFetch_FreshValuePerHit(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	fetch := func(ctx context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	}

	ctx := context.Background()
	first, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch)
	if err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	// Mutating a returned value must not corrupt the cached copy.
	first.([]string)[0] = "mutated"

	second, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch)
	if err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if got := second.([]string)[0]; got != "a" {
		t.Errorf("caller mutation leaked into the cache: got %q", got)
	}
}

func TestGetOrFetch_ErrorNotCached(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var calls int32
	fetch := func(ctx context.Context) (testRecord, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return testRecord{}, errors.New("store unavailable")
		}
		return testRecord{ID: "r1"}, nil
	}

	ctx := context.Background()
	if _, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch); err == nil {
		t.Fatal("expected fetch error on first call")
	}

	got, err := svc.GetOrFetch(ctx, "k1", nil, 0, fetch)
	if err != nil {
		t.Fatalf("expected recovery on second call, got: %v", err)
	}
	if rec := got.(testRecord); rec.ID != "r1" {
		t.Errorf("unexpected record after recovery: %+v", rec)
	}
}

func TestGetOrFetch_PerEntryTTL(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var calls int32
	fetch := func(ctx context.Context) (testRecord, error) {
		atomic.AddInt32(&calls, 1)
		return testRecord{ID: "r1"}, nil
	}

	ctx := context.Background()
	if _, err := svc.GetOrFetch(ctx, "k1", nil, 20*time.Millisecond, fetch); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := svc.GetOrFetch(ctx, "k1", nil, 20*time.Millisecond, fetch); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected refetch after revalidate window, got %d calls", n)
	}
}

func TestInvalidateTags_EvictsAllCarriers(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	counts := map[string]*int32{"a": new(int32), "b": new(int32)}
	fetchFor := func(name string) func(ctx context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			atomic.AddInt32(counts[name], 1)
			return name, nil
		}
	}

	ctx := context.Background()

	// Two keys share the environment tag; both must go when it is invalidated.
	if _, err := svc.GetOrFetch(ctx, "keyA", []string{"environments-e1-surveys", "surveys-s1"}, 0, fetchFor("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetOrFetch(ctx, "keyB", []string{"environments-e1-surveys", "surveys-s2"}, 0, fetchFor("b")); err != nil {
		t.Fatal(err)
	}

	if err := svc.InvalidateTags(ctx, []string{"environments-e1-surveys"}); err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}

	if _, err := svc.GetOrFetch(ctx, "keyA", []string{"environments-e1-surveys"}, 0, fetchFor("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetOrFetch(ctx, "keyB", []string{"environments-e1-surveys"}, 0, fetchFor("b")); err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadInt32(counts["a"]); n != 2 {
		t.Errorf("keyA not refetched after invalidation: %d calls", n)
	}
	if n := atomic.LoadInt32(counts["b"]); n != 2 {
		t.Errorf("keyB not refetched after invalidation: %d calls", n)
	}
}

func TestInvalidateTags_DisjointTagsUntouched(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	ctx := context.Background()
	if _, err := svc.GetOrFetch(ctx, "k1", []string{"surveys-s1"}, 0, fetch); err != nil {
		t.Fatal(err)
	}

	// Disjoint tag set: must not evict k1.
	if err := svc.InvalidateTags(ctx, []string{"segments-seg1", "people-p9-displays"}); err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}

	if _, err := svc.GetOrFetch(ctx, "k1", []string{"surveys-s1"}, 0, fetch); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("entry with disjoint tags was evicted: %d calls", n)
	}
}

func TestInvalidateTags_Idempotent(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	ctx := context.Background()
	fetch := func(ctx context.Context) (string, error) { return "v", nil }

	if _, err := svc.GetOrFetch(ctx, "k1", []string{"surveys-s1"}, 0, fetch); err != nil {
		t.Fatal(err)
	}

	if err := svc.InvalidateTags(ctx, []string{"surveys-s1"}); err != nil {
		t.Fatalf("first invalidation failed: %v", err)
	}
	if err := svc.InvalidateTags(ctx, []string{"surveys-s1"}); err != nil {
		t.Fatalf("second invalidation failed: %v", err)
	}
	if err := svc.InvalidateTags(ctx, []string{"never-used-tag"}); err != nil {
		t.Fatalf("invalidating unknown tag failed: %v", err)
	}
}

func TestGetOrFetch_RejectsBadFetchFn(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	ctx := context.Background()

	tests := []struct {
		name    string
		fetchFn any
	}{
		{"nil", nil},
		{"not a function", "hello"},
		{"wrong arity", func() (string, error) { return "", nil }},
		{"wrong second return", func(ctx context.Context) (string, string) { return "", "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.GetOrFetch(ctx, "k", nil, 0, tt.fetchFn); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestGetOrFetch_TagsRegisteredBeforeStore(t *testing.T) {
	svc, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (testRecord, error) {
		close(started)
		<-release
		return testRecord{ID: "r1"}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := svc.GetOrFetch(context.Background(), "k1", []string{"surveys-r1"}, 0, fetch); err != nil {
			t.Errorf("GetOrFetch failed: %v", err)
		}
	}()

	// An invalidation arriving while the fetch is still computing must be able
	// to find the key in the tag index.
	<-started
	if keys, ok := svc.tags.Load("surveys-r1"); !ok {
		t.Error("tag not indexed while fetch is in flight")
	} else if _, ok := keys.Load("k1"); !ok {
		t.Error("key not registered under its tag while fetch is in flight")
	}

	close(release)
	<-done
}
