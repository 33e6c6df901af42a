package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrBadExtrinsicsRoot   = errors.New("extrinsics root mismatch")
	ErrBadVersion          = errors.New("unsupported block version")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrBlockTooLarge       = errors.New("block too large")
	ErrDuplicateBlockSpend = errors.New("output consumed by more than one transaction in block")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// Validate checks block structure and internal consistency.
// This does NOT check inherents or execute transactions.
func (b *Block[C]) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}

	if len(b.Extrinsics) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Extrinsics), config.MaxBlockTxs)
	}

	if size := len(b.Bytes()); size > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, size, config.MaxBlockSize)
	}

	if root := b.ComputeExtrinsicsRoot(); b.Header.ExtrinsicsRoot != root {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadExtrinsicsRoot, b.Header.ExtrinsicsRoot, root)
	}

	for i, t := range b.Extrinsics {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	// Inputs and evictions both remove an output, so a ref may appear in at
	// most one of them across the whole block.
	removed := make(map[types.OutputRef]int)
	for i, t := range b.Extrinsics {
		refs := make([]types.OutputRef, 0, len(t.Inputs)+len(t.Evictions))
		for _, in := range t.Inputs {
			refs = append(refs, in.OutputRef)
		}
		refs = append(refs, t.Evictions...)
		for _, ref := range refs {
			if prev, exists := removed[ref]; exists {
				return fmt.Errorf("tx %d: %w: %s also removed in tx %d", i, ErrDuplicateBlockSpend, ref, prev)
			}
			removed[ref] = i
		}
	}

	return nil
}
