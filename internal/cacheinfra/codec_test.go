package cacheinfra

import (
	"reflect"
	"testing"
	"time"
)

func TestEntry_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		e    entry
		want bool
	}{
		{"zero ttl never expires early", entry{StoredAt: now.Add(-time.Hour), TTL: 0}, false},
		{"inside window", entry{StoredAt: now.Add(-time.Second), TTL: time.Minute}, false},
		{"past window", entry{StoredAt: now.Add(-2 * time.Minute), TTL: time.Minute}, true},
		{"exactly at window", entry{StoredAt: now.Add(-time.Minute), TTL: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.expired(now); got != tt.want {
				t.Errorf("expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeValue_TypedTarget(t *testing.T) {
	type record struct {
		ID   string
		When time.Time
	}

	src := record{ID: "r1", When: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	data, err := encodeValue(src)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := decodeValue(data, reflect.TypeOf(record{}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	rec, ok := got.(record)
	if !ok {
		t.Fatalf("decoded into wrong type: %T", got)
	}
	if rec.ID != src.ID || !rec.When.Equal(src.When) {
		t.Errorf("round trip mismatch: got %+v, want %+v", rec, src)
	}
}

func TestDecodeValue_SliceOfPointers(t *testing.T) {
	type record struct{ ID string }

	src := []*record{{ID: "a"}, {ID: "b"}}
	data, err := encodeValue(src)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := decodeValue(data, reflect.TypeOf([]*record{}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	recs := got.([]*record)
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Errorf("round trip mismatch: %+v", recs)
	}
}

func TestDecodeValue_InterfaceTarget(t *testing.T) {
	data, err := encodeValue(map[string]string{"plan": "pro"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := decodeValue(data, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got == nil {
		t.Error("expected decoded value, got nil")
	}
}
