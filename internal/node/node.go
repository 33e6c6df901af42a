// Package node provides a reusable ledger node that can be embedded in any
// binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/author"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/mempool"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/timestamp"
)

// Node is a fully-initialized ledger node.
type Node struct {
	cfg    *config.Config
	rules  *config.Rules
	logger zerolog.Logger

	// Core
	db     storage.DB
	rt     *runtime.Runtime
	ch     *chain.Chain
	pool   *mempool.Pool[runtime.Checker]
	author *author.Author
	clock  func() time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, rules, storage, runtime, chain, mempool) but does NOT start
// background goroutines (authoring, clean-up). Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile, err := logFilePath(cfg)
	if err != nil {
		return nil, err
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Protocol rules ───────────────────────────────────────────
	rules, err := config.LoadRulesFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	rulesHash, err := rules.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash rules: %w", err)
	}
	logger.Info().
		Str("network", rules.Network).
		Str("rules", rulesHash.String()).
		Uint64("min_interval_ms", rules.Timestamp.MinimumTimeInterval).
		Msg("Starting ledger node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("backend", string(cfg.DB)).Msg("Database opened")

	// ── 4. Runtime and chain ────────────────────────────────────────
	rt := runtime.New(storage.NewPrefixDB(db, prefixState), timestamp.RulesFromConfig(rules.Timestamp), nil)

	ch, err := chain.New(storage.NewPrefixDB(db, prefixBlocks), rt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chain: %w", err)
	}

	state := ch.State()
	if err := ch.InitGenesis(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init genesis: %w", err)
	}
	if state.IsGenesis() {
		logger.Info().Msg("Chain initialized from genesis")
	} else {
		logger.Info().
			Uint32("height", state.Height).
			Str("tip", state.TipHash.String()).
			Msg("Chain resumed from database")
	}

	// ── 5. Mempool ──────────────────────────────────────────────────
	pool := mempool.New[runtime.Checker](ch, cfg.Mempool.MaxSize)
	pool.SetPolicy(&mempool.Policy{MaxTxSize: cfg.Mempool.MaxTxSize})

	logger.Info().
		Int("max_size", cfg.Mempool.MaxSize).
		Int("max_tx_size", cfg.Mempool.MaxTxSize).
		Msg("Mempool ready")

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:    cfg,
		rules:  rules,
		logger: logger,
		db:     db,
		rt:     rt,
		ch:     ch,
		pool:   pool,
		author: author.New(ch, rt, pool),
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the background goroutines enabled in the config.
func (n *Node) Start() error {
	if n.cfg.Author.Enabled {
		n.logger.Info().
			Dur("interval", n.cfg.Author.BlockTime).
			Msg("Block production enabled")

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runAuthor(n.cfg.Author.BlockTime)
		}()
	}

	if n.cfg.Author.CleanupInterval > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runJanitor(n.cfg.Author.CleanupInterval)
		}()
	}

	n.logger.Info().
		Uint32("height", n.ch.Height()).
		Str("tip", n.ch.TipHash().String()).
		Bool("author", n.cfg.Author.Enabled).
		Msg("Node started successfully")
	return nil
}

// Stop cancels background work, waits for it and closes the database.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Failed to close database")
		}
	}

	n.logger.Info().Msg("Goodbye!")
}

// Chain returns the node's chain.
func (n *Node) Chain() *chain.Chain { return n.ch }

// Pool returns the node's transaction pool.
func (n *Node) Pool() *mempool.Pool[runtime.Checker] { return n.pool }

// Runtime returns the node's runtime.
func (n *Node) Runtime() *runtime.Runtime { return n.rt }

// Height returns the current chain height.
func (n *Node) Height() uint32 { return n.ch.Height() }

// SubmitTransaction validates t against the tip and adds it to the pool.
func (n *Node) SubmitTransaction(t runtime.Transaction) (constraint.Priority, error) {
	prio, err := n.pool.Add(t)
	if err != nil {
		return 0, err
	}
	n.logger.Debug().
		Str("tx", t.Hash().String()).
		Uint64("priority", uint64(prio)).
		Msg("Transaction accepted")
	return prio, nil
}

// SubmitEncoded decodes a wire transaction and submits it.
func (n *Node) SubmitEncoded(b []byte) (constraint.Priority, error) {
	t, err := n.rt.DecodeTransaction(b)
	if err != nil {
		return 0, fmt.Errorf("decode transaction: %w", err)
	}
	return n.SubmitTransaction(t)
}

// ImportBlock imports a block and prunes the pool against the new tip.
func (n *Node) ImportBlock(ctx context.Context, blk *runtime.Block) error {
	if err := n.ch.ProcessBlock(ctx, blk); err != nil {
		return err
	}
	// The chain lock is released here; the pool may call back into it.
	confirmed := n.pool.RemoveConfirmed(blk.Extrinsics)
	dropped := n.pool.Revalidate()
	if confirmed > 0 || dropped > 0 {
		n.logger.Debug().
			Int("confirmed", confirmed).
			Int("dropped", dropped).
			Int("pending", n.pool.Count()).
			Msg("Mempool pruned")
	}
	return nil
}

// AuthorBlock produces a block at now on top of the tip and imports it.
func (n *Node) AuthorBlock(ctx context.Context, now time.Time) (*runtime.Block, error) {
	blk, err := n.author.ProduceBlock(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("produce block: %w", err)
	}
	if err := n.ImportBlock(ctx, blk); err != nil {
		return nil, fmt.Errorf("import own block: %w", err)
	}
	return blk, nil
}

func (n *Node) runAuthor(blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			n.logger.Info().Msg("Block production stopped")
			return
		case <-ticker.C:
			blk, err := n.AuthorBlock(n.ctx, n.clock())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				// A tick too close to the previous block is not worth an error.
				if errors.Is(err, timestamp.ErrTimestampTooOld) {
					n.logger.Debug().Err(err).Msg("Skipping block, too soon after parent")
					continue
				}
				n.logger.Error().Err(err).Msg("Failed to produce block")
				continue
			}
			klog.WithBlock(n.logger, blk.Height(), blk.Hash()).Info().
				Int("extrinsics", len(blk.Extrinsics)).
				Msg("Block produced")
		}
	}
}

// SweepTimestamps submits a clean-up transaction evicting every timestamp
// old enough relative to the newest one. It reports whether one was
// submitted.
func (n *Node) SweepTimestamps() (bool, error) {
	reference, evictable, err := n.rt.EvictableTimestamps()
	if err != nil {
		return false, err
	}
	if len(evictable) == 0 {
		return false, nil
	}
	cleanup := n.rt.CleanUpTransaction(reference, evictable)
	if _, err := n.SubmitTransaction(cleanup); err != nil {
		return false, fmt.Errorf("submit clean-up: %w", err)
	}
	n.logger.Info().
		Int("evictions", len(evictable)).
		Str("reference", reference.String()).
		Msg("Submitted timestamp clean-up")
	return true, nil
}

func (n *Node) runJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.SweepTimestamps(); err != nil {
				// A previous sweep may still be pending in the pool.
				if errors.Is(err, mempool.ErrConflict) || errors.Is(err, mempool.ErrAlreadyExists) {
					n.logger.Debug().Err(err).Msg("Clean-up already pending")
					continue
				}
				n.logger.Warn().Err(err).Msg("Timestamp clean-up failed")
			}
		}
	}
}
