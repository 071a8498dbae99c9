package cacheinfra

import (
	"reflect"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// entry is the stored representation of a cached value. The payload is the
// msgpack encoding of the computed result; decoding on every hit hands the
// caller a fresh value, so mutations on returned slices or structs cannot
// reach the cached copy, and time.Time fields survive the round trip as
// time.Time rather than strings.
type entry struct {
	Payload  []byte        `msgpack:"p"`
	StoredAt time.Time     `msgpack:"s"`
	TTL      time.Duration `msgpack:"t"`
}

// expired reports whether the entry is past its revalidate-after window.
// A zero TTL means the backend TTL alone governs expiry.
func (e entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) >= e.TTL
}

func encodeValue(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// decodeValue reconstructs a value of the given type from its msgpack
// payload. An interface target (including plain any) decodes into whatever
// shape msgpack produces.
func decodeValue(data []byte, target reflect.Type) (any, error) {
	if target == nil || target.Kind() == reflect.Interface {
		var out any
		if err := msgpack.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	ptr := reflect.New(target)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
