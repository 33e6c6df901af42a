package chain

import (
	"context"
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
)

// Block processing errors.
var (
	ErrBlockKnown        = errors.New("block already known")
	ErrPrevNotFound      = errors.New("previous block not found")
	ErrBadHeight         = errors.New("block height does not follow parent")
	ErrBadPrevHash       = errors.New("parent hash does not match current tip")
	ErrInvalidBlock      = errors.New("invalid block")
	ErrInherentsRejected = errors.New("block inherents rejected")
	ErrApplyBlock        = errors.New("failed to apply block")
)

// ProcessBlock validates a block on top of the current tip and imports it.
// The block's inherents are checked against importing data built from the
// stored parent block and the local clock before any extrinsic executes.
// Only blocks extending the tip are accepted.
func (c *Chain) ProcessBlock(ctx context.Context, blk *runtime.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if c.genesisHash.IsZero() {
		return ErrNotInitialized
	}

	hash := blk.Hash()

	// Reject duplicates.
	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	parentBytes, err := c.checkParentLink(blk)
	if err != nil {
		return err
	}

	if err := blk.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	if err := c.checkInherents(ctx, blk, parentBytes); err != nil {
		return err
	}

	// The output set changes, the block, its indexes and the new tip land in
	// one batch.
	batch := storage.NewBatch(c.blocks.Root())
	defer batch.Discard()
	if err := c.rt.Exec.ApplyBlockTo(blk, batch); err != nil {
		c.restoreHeight()
		return fmt.Errorf("%w: %w", ErrApplyBlock, err)
	}
	if err := c.blocks.StageBlock(batch, blk); err != nil {
		c.restoreHeight()
		return fmt.Errorf("store block: %w", err)
	}
	if err := batch.Commit(); err != nil {
		c.restoreHeight()
		return fmt.Errorf("commit block: %w", err)
	}

	c.state.TipHash = hash
	c.state.Height = blk.Height()

	klog.WithBlock(c.logger, blk.Height(), hash).Info().
		Int("extrinsics", len(blk.Extrinsics)).
		Msg("Imported block")
	return nil
}

// checkParentLink verifies blk extends the current tip and returns the
// encoded parent block.
func (c *Chain) checkParentLink(blk *runtime.Block) ([]byte, error) {
	if blk.Header.ParentHash != c.state.TipHash {
		if ok, _ := c.blocks.HasBlock(blk.Header.ParentHash); !ok {
			return nil, fmt.Errorf("%w: %s", ErrPrevNotFound, blk.Header.ParentHash)
		}
		return nil, fmt.Errorf("%w: parent %s, tip %s", ErrBadPrevHash, blk.Header.ParentHash, c.state.TipHash)
	}
	if want := c.state.Height + 1; blk.Height() != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadHeight, blk.Height(), want)
	}
	parent, err := c.blocks.GetBlockBytes(blk.Header.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrevNotFound, err)
	}
	return parent, nil
}

// checkInherents runs the runtime's off-chain inherent checks over blk.
func (c *Chain) checkInherents(ctx context.Context, blk *runtime.Block, parent []byte) error {
	providers := []inherent.DataProvider{
		inherent.ParentBlockProvider{Block: parent},
		inherent.TimestampProvider{Now: c.now},
	}
	data, err := inherent.Collect(ctx, providers...)
	if err != nil {
		return fmt.Errorf("importing inherent data: %w", err)
	}

	results := c.checkResults(data, blk)
	if results.Ok() {
		return nil
	}
	handled := inherent.HandleErrors(results, providers...)
	if results.FatalErrorReported() {
		return fmt.Errorf("%w: %w", ErrInherentsRejected, handled)
	}
	// Non-fatal entries are advisory.
	c.logger.Warn().Err(handled).
		Uint32("height", blk.Height()).
		Msg("Importing block despite inherent check errors")
	return nil
}

// restoreHeight moves the executive's height back to the tip after a failed
// import.
func (c *Chain) restoreHeight() {
	if err := c.rt.Exec.SetBlockHeight(c.state.Height); err != nil {
		c.logger.Error().Err(err).Msg("Failed to restore block height")
	}
}
