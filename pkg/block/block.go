// Package block defines blocks: a header plus an ordered list of extrinsics.
package block

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Block is a header and its extrinsics. Inherent extrinsics come first.
type Block[C codec.Encodable] struct {
	Header     *Header
	Extrinsics []tx.Transaction[C]
}

// NewBlock creates a block with the given header and extrinsics.
func NewBlock[C codec.Encodable](header *Header, txs []tx.Transaction[C]) *Block[C] {
	return &Block[C]{
		Header:     header,
		Extrinsics: txs,
	}
}

// Hash returns the block header hash.
func (b *Block[C]) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// Height returns the header height.
func (b *Block[C]) Height() uint32 {
	if b.Header == nil {
		return 0
	}
	return b.Header.Height
}

// TxHashes returns the hash of every extrinsic in order.
func (b *Block[C]) TxHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Extrinsics))
	for i, t := range b.Extrinsics {
		hashes[i] = t.Hash()
	}
	return hashes
}

// ComputeExtrinsicsRoot returns the merkle root over the block's extrinsics.
func (b *Block[C]) ComputeExtrinsicsRoot() types.Hash {
	return ComputeExtrinsicsRoot(b.TxHashes())
}

// EncodeTo writes header | len | extrinsics.
func (b *Block[C]) EncodeTo(e *codec.Encoder) {
	b.Header.EncodeTo(e)
	e.Len(len(b.Extrinsics))
	for _, t := range b.Extrinsics {
		t.EncodeTo(e)
	}
}

// Bytes returns the canonical block encoding.
func (b *Block[C]) Bytes() []byte {
	return codec.Encode(b)
}

// Decode decodes a block whose extrinsics use the checker type of txc.
// Trailing bytes are an error.
func Decode[C codec.Encodable](b []byte, txc tx.Codec[C]) (*Block[C], error) {
	d := codec.NewDecoder(b)
	blk := &Block[C]{Header: &Header{}}

	d.Value(blk.Header)
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	n := d.Len()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("extrinsics: %w", err)
	}
	if n > config.MaxBlockTxs {
		return nil, fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, n, config.MaxBlockTxs)
	}
	if n > 0 {
		blk.Extrinsics = make([]tx.Transaction[C], n)
		for i := range blk.Extrinsics {
			t, err := txc.DecodeFrom(d)
			if err != nil {
				return nil, fmt.Errorf("extrinsic %d: %w", i, err)
			}
			blk.Extrinsics[i] = t
		}
	}

	if err := d.Finish(); err != nil {
		return nil, err
	}
	return blk, nil
}
