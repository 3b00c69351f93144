package cache

import (
	"encoding/json"
	"errors"
)

// ErrMissingCodec is returned when a persisted cache is built without both codec functions.
var ErrMissingCodec = errors.New("cache codec requires both serialize and deserialize functions")

// Codec converts cached values to and from the JSON stored in a snapshot.
// Each persisted cache carries its own codec, so the snapshot layout of a
// value is decided by the code that owns the value type.
type Codec[V any] struct {
	Serialize   func(V) (json.RawMessage, error)
	Deserialize func(json.RawMessage) (V, error)
}

// JSONCodec stores values using their encoding/json representation.
func JSONCodec[V any]() Codec[V] {
	return Codec[V]{
		Serialize: func(v V) (json.RawMessage, error) {
			return json.Marshal(v)
		},
		Deserialize: func(data json.RawMessage) (V, error) {
			var v V
			err := json.Unmarshal(data, &v)
			return v, err
		},
	}
}

func (c Codec[V]) valid() bool {
	return c.Serialize != nil && c.Deserialize != nil
}
