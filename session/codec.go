// Codec defines how session values and metadata (like creation time)
// are serialized to and from bytes, allowing them to be stored or transmitted.
// The package includes a default implementation using Go's `encoding/gob`.
package session

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Codec is an interface for serializing and deserializing session data.
type Codec interface {
	// Decode decodes byte slice into the session creation time and values.
	Decode(data []byte) (createdAt time.Time, values map[string]any, err error)

	// Encode encodes the creation time and session values into a byte slice.
	Encode(createdAt time.Time, values map[string]any) (data []byte, err error)
}

// Ensure GobCodec implements Codec.
var _ Codec = GobCodec{}

// Register records a concrete type that may be stored as a session value, so
// that GobCodec can encode it behind the map's interface values. Builtin types
// need no registration.
func Register(value any) {
	gob.Register(value)
}

// GobCodec is a Codec implementation using Go's encoding/gob. It serializes
// a gobData struct containing the creation time and session values.
type GobCodec struct{}

type gobData struct {
	CreatedAt time.Time
	Values    map[string]any
}

// Encode serializes the creation time and session values into a byte slice
// using gob encoding.
func (GobCodec) Encode(createdAt time.Time, values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	err := encoder.Encode(&gobData{CreatedAt: createdAt, Values: values})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode deserializes the data into a creation time and session values
// using gob decoding.
func (GobCodec) Decode(data []byte) (time.Time, map[string]any, error) {
	decoder := gob.NewDecoder(bytes.NewReader(data))

	var d gobData
	if err := decoder.Decode(&d); err != nil {
		return time.Time{}, nil, err
	}
	if d.Values == nil {
		d.Values = make(map[string]any)
	}
	return d.CreatedAt, d.Values, nil
}
