// Package author builds new blocks on top of the chain tip.
package author

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/config"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
)

// ChainState provides the tip the author builds on.
type ChainState interface {
	// WithTip runs fn with the tip block while no block can be imported.
	WithTip(fn func(tip *runtime.Block) error) error
}

// TxSelector selects pending transactions for inclusion in a block.
type TxSelector interface {
	SelectForBlock(limit int) []runtime.Transaction
}

// Author produces blocks from inherents and pool transactions.
type Author struct {
	chain  ChainState
	rt     *runtime.Runtime
	pool   TxSelector
	maxTxs int
	logger zerolog.Logger
}

// New creates an author. pool may be nil for inherent-only blocks.
func New(chain ChainState, rt *runtime.Runtime, pool TxSelector) *Author {
	return &Author{
		chain:  chain,
		rt:     rt,
		pool:   pool,
		maxTxs: config.MaxBlockTxs,
		logger: klog.Author,
	}
}

// SetMaxTxs caps the number of extrinsics, inherents included, per block.
func (a *Author) SetMaxTxs(n int) {
	if n > 0 {
		a.maxTxs = n
	}
}

// ProduceBlock creates a new block on top of the current tip stamped with
// now. The block is NOT applied to the chain; the caller must import it.
func (a *Author) ProduceBlock(ctx context.Context, now time.Time) (*runtime.Block, error) {
	// Select before touching the chain: the pool calls into the chain when
	// it validates, so the chain lock must not be held here.
	var candidates []runtime.Transaction
	if a.pool != nil {
		candidates = a.pool.SelectForBlock(a.maxTxs)
	}

	var blk *runtime.Block
	err := a.chain.WithTip(func(tip *runtime.Block) error {
		var err error
		blk, err = a.build(ctx, tip, now, candidates)
		return err
	})
	if err != nil {
		return nil, err
	}
	return blk, nil
}

func (a *Author) build(ctx context.Context, tip *runtime.Block, now time.Time, candidates []runtime.Transaction) (*runtime.Block, error) {
	done := klog.Benchmark("produce_block")
	defer done()

	height := tip.Height() + 1
	data, err := inherent.Collect(ctx,
		inherent.ParentBlockProvider{Block: tip.Bytes()},
		inherent.TimestampProvider{Now: func() time.Time { return now }},
	)
	if err != nil {
		return nil, fmt.Errorf("authoring inherent data: %w", err)
	}

	exec := a.rt.Exec
	if err := exec.SetBlockHeight(height); err != nil {
		return nil, err
	}
	// The tip stays the committed height until the block is imported.
	defer func() {
		if err := exec.SetBlockHeight(tip.Height()); err != nil {
			a.logger.Error().Err(err).Msg("Failed to restore block height")
		}
	}()

	inherents, err := a.rt.CreateInherents(data)
	if err != nil {
		return nil, fmt.Errorf("create inherents: %w", err)
	}

	// Dry-run everything on a scratch overlay. It is never committed.
	overlay := utxo.NewOverlay(exec.Store())
	defer overlay.Discard()

	txs := make([]runtime.Transaction, 0, len(inherents)+len(candidates))
	size := 0
	for i, in := range inherents {
		if err := exec.ApplyTransaction(overlay, in); err != nil {
			return nil, fmt.Errorf("inherent %d: %w", i, err)
		}
		txs = append(txs, in)
		size += len(in.Bytes())
	}

	skipped := 0
	for _, c := range candidates {
		if len(txs) >= a.maxTxs {
			break
		}
		if c.Checker.IsInherent() {
			skipped++
			continue
		}
		n := len(c.Bytes())
		if size+n > config.MaxBlockSize {
			skipped++
			continue
		}
		if err := exec.ApplyTransaction(overlay, c); err != nil {
			a.logger.Debug().Err(err).Str("tx", c.Hash().String()).Msg("Skipping transaction")
			skipped++
			continue
		}
		txs = append(txs, c)
		size += n
	}

	header := &block.Header{
		Version:    block.CurrentVersion,
		ParentHash: tip.Hash(),
		Height:     height,
	}
	blk := block.NewBlock(header, txs)
	blk.Header.ExtrinsicsRoot = blk.ComputeExtrinsicsRoot()

	klog.WithBlock(a.logger, height, blk.Hash()).Debug().
		Int("inherents", len(inherents)).
		Int("txs", len(txs)-len(inherents)).
		Int("skipped", skipped).
		Msg("Produced block")
	return blk, nil
}
