package types

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
)

// OutputRefSize is the encoded size of an OutputRef.
const OutputRefSize = HashSize + 4

// OutputRef locates an output by the hash of the transaction that created it
// and the output's position in that transaction. A ref stays valid only until
// the output is consumed or evicted.
type OutputRef struct {
	TxHash Hash   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// String returns "txhash:index" in hex.
func (r OutputRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxHash.String(), r.Index)
}

// Key returns the 36-byte storage key for the ref: tx hash followed by the
// big-endian index, so refs of one transaction sort together.
func (r OutputRef) Key() []byte {
	key := make([]byte, OutputRefSize)
	copy(key, r.TxHash[:])
	binary.BigEndian.PutUint32(key[HashSize:], r.Index)
	return key
}

// OutputRefFromKey parses a key produced by Key.
func OutputRefFromKey(key []byte) (OutputRef, error) {
	if len(key) != OutputRefSize {
		return OutputRef{}, fmt.Errorf("output ref key must be %d bytes, got %d", OutputRefSize, len(key))
	}
	var r OutputRef
	copy(r.TxHash[:], key[:HashSize])
	r.Index = binary.BigEndian.Uint32(key[HashSize:])
	return r, nil
}

// EncodeTo writes the ref as hash(32) | index(u32 LE).
func (r OutputRef) EncodeTo(e *codec.Encoder) {
	e.Fixed(r.TxHash[:])
	e.Uint32(r.Index)
}

// DecodeFrom reads a ref written by EncodeTo.
func (r *OutputRef) DecodeFrom(d *codec.Decoder) error {
	d.Fixed(r.TxHash[:])
	r.Index = d.Uint32()
	return d.Err()
}

// EncodeRefs writes a length-prefixed list of refs.
func EncodeRefs(e *codec.Encoder, refs []OutputRef) {
	e.Len(len(refs))
	for _, r := range refs {
		r.EncodeTo(e)
	}
}

// DecodeRefs reads a list written by EncodeRefs.
func DecodeRefs(d *codec.Decoder) []OutputRef {
	n := d.Len()
	if d.Err() != nil || n == 0 {
		return nil
	}
	if n > d.Remaining()/OutputRefSize {
		d.Fail(fmt.Errorf("%w: %d refs", codec.ErrShortBuffer, n))
		return nil
	}
	refs := make([]OutputRef, n)
	for i := range refs {
		d.Value(&refs[i])
	}
	return refs
}
