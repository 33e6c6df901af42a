// Package dynamic implements the dynamically typed payload carried by every
// output: a 4-byte type tag followed by the encoded body.
package dynamic

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
)

// TypeIDSize is the length of a payload type tag.
const TypeIDSize = 4

// Payload errors.
var (
	ErrTypeMismatch = errors.New("payload type mismatch")
	ErrMalformed    = errors.New("malformed payload body")
)

// TypeID tags the concrete type of a payload.
type TypeID [TypeIDSize]byte

// String returns the tag as text when printable, hex otherwise.
func (id TypeID) String() string {
	for _, c := range id {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("%x", id[:])
		}
	}
	return string(id[:])
}

// UtxoData is implemented by every type that can live in an output payload.
type UtxoData interface {
	codec.Encodable
	TypeID() TypeID
}

// Data is a tagged, opaque payload. Pieces interpret it through Extract.
type Data struct {
	Type TypeID
	Body []byte
}

// New stamps v's tag and encodes its body.
func New(v UtxoData) Data {
	return Data{Type: v.TypeID(), Body: codec.Encode(v)}
}

// Is reports whether the payload carries the given tag.
func (d Data) Is(id TypeID) bool {
	return d.Type == id
}

// Equal reports whether two payloads are byte-identical.
func (d Data) Equal(o Data) bool {
	return d.Type == o.Type && bytes.Equal(d.Body, o.Body)
}

// EncodeTo writes tag(4) | varbytes(body).
func (d Data) EncodeTo(e *codec.Encoder) {
	e.Fixed(d.Type[:])
	e.VarBytes(d.Body)
}

// DecodeFrom reads a payload written by EncodeTo.
func (d *Data) DecodeFrom(dec *codec.Decoder) error {
	dec.Fixed(d.Type[:])
	d.Body = dec.VarBytes()
	return dec.Err()
}

// Extract decodes the payload as T. The tag must match T's tag and the body
// must decode completely.
func Extract[T any, PT interface {
	*T
	UtxoData
	codec.Decodable
}](d Data) (T, error) {
	var out T
	want := PT(&out).TypeID()
	if d.Type != want {
		return out, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, d.Type)
	}
	if err := codec.Decode(d.Body, PT(&out)); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformed, want, err)
	}
	return out, nil
}
