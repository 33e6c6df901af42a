// Package codec implements the canonical binary encoding used on the wire and
// for content addressing.
//
// Layout rules:
//   - fixed-width integers are little-endian,
//   - byte strings and sequence lengths are prefixed with a minimal unsigned varint,
//   - fixed-size arrays are written raw.
//
// The varint decoder rejects non-minimal encodings, so every value has exactly
// one valid encoding and hashes over encoded bytes are stable.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"
)

// Decoding errors.
var (
	ErrShortBuffer   = errors.New("unexpected end of input")
	ErrTrailingBytes = errors.New("trailing bytes after value")
	ErrBadLength     = errors.New("invalid length prefix")
	ErrBadBool       = errors.New("invalid bool byte")
)

// MaxLength caps any single length prefix. It bounds allocations when decoding
// untrusted input.
const MaxLength = 1 << 24

// Encodable is implemented by every value with a canonical encoding.
type Encodable interface {
	EncodeTo(e *Encoder)
}

// Decodable is implemented by pointers to values that can be decoded.
type Decodable interface {
	DecodeFrom(d *Decoder) error
}

// Encoder appends canonical encodings to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Uint8 writes a single byte.
func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

// Bool writes 0x01 for true, 0x00 for false.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// Uint32 writes v as 4 little-endian bytes.
func (e *Encoder) Uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// Uint64 writes v as 8 little-endian bytes.
func (e *Encoder) Uint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// Len writes a sequence length as a minimal varint.
func (e *Encoder) Len(n int) {
	e.buf = append(e.buf, varint.ToUvarint(uint64(n))...)
}

// Fixed writes b without a length prefix.
func (e *Encoder) Fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// VarBytes writes a length-prefixed byte string.
func (e *Encoder) VarBytes(b []byte) {
	e.Len(len(b))
	e.buf = append(e.buf, b...)
}

// Value writes an Encodable.
func (e *Encoder) Value(v Encodable) {
	v.EncodeTo(e)
}

// Encode returns the canonical encoding of v.
func Encode(v Encodable) []byte {
	e := NewEncoder()
	v.EncodeTo(e)
	return e.Bytes()
}

// Decoder reads canonical encodings. The first error is sticky: once set,
// every subsequent read returns a zero value and Err reports it.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Fail records err unless an error is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Finish returns the sticky error, or ErrTrailingBytes if input is left over.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(d.buf)-d.off)
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.off, d.Remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Uint8 reads a single byte.
func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a strict 0x00/0x01 byte.
func (d *Decoder) Bool() bool {
	v := d.Uint8()
	if v > 1 {
		d.Fail(fmt.Errorf("%w: 0x%02x", ErrBadBool, v))
		return false
	}
	return v == 1
}

// Uint32 reads 4 little-endian bytes.
func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads 8 little-endian bytes.
func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Len reads a varint length and checks it against MaxLength.
func (d *Decoder) Len() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.FromUvarint(d.buf[d.off:])
	if err != nil {
		d.err = fmt.Errorf("%w: %v", ErrBadLength, err)
		return 0
	}
	if v > MaxLength {
		d.err = fmt.Errorf("%w: %d exceeds max %d", ErrBadLength, v, MaxLength)
		return 0
	}
	d.off += n
	return int(v)
}

// Fixed reads exactly len(dst) bytes into dst.
func (d *Decoder) Fixed(dst []byte) {
	b := d.take(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

// VarBytes reads a length-prefixed byte string. The result is a copy.
func (d *Decoder) VarBytes() []byte {
	n := d.Len()
	b := d.take(n)
	if b == nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Value decodes into v and records any error it returns.
func (d *Decoder) Value(v Decodable) {
	if d.err != nil {
		return
	}
	if err := v.DecodeFrom(d); err != nil {
		d.Fail(err)
	}
}

// Decode decodes b into v and requires that all input is consumed.
func Decode(b []byte, v Decodable) error {
	d := NewDecoder(b)
	d.Value(v)
	return d.Finish()
}
