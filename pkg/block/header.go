package block

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version        uint32     `json:"version"`
	ParentHash     types.Hash `json:"parent_hash"`
	Height         uint32     `json:"height"`
	ExtrinsicsRoot types.Hash `json:"extrinsics_root"`
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(codec.Encode(h))
}

// EncodeTo writes version(4) | parent_hash(32) | height(4) | extrinsics_root(32).
func (h *Header) EncodeTo(e *codec.Encoder) {
	e.Uint32(h.Version)
	e.Fixed(h.ParentHash[:])
	e.Uint32(h.Height)
	e.Fixed(h.ExtrinsicsRoot[:])
}

// DecodeFrom reads a header written by EncodeTo.
func (h *Header) DecodeFrom(d *codec.Decoder) error {
	h.Version = d.Uint32()
	d.Fixed(h.ParentHash[:])
	h.Height = d.Uint32()
	d.Fixed(h.ExtrinsicsRoot[:])
	return d.Err()
}
