// Package chain implements the ledger's block import state machine.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Chain setup errors.
var (
	ErrNotInitialized  = errors.New("chain has no genesis block")
	ErrGenesisMismatch = errors.New("stored genesis does not match runtime genesis")
	ErrSplitStorage    = errors.New("block store and runtime state must share one database")
)

// Chain holds the imported blocks and drives the runtime over them.
type Chain struct {
	mu     sync.Mutex // Protects state and every runtime state mutation.
	state  *State
	blocks *BlockStore
	rt     *runtime.Runtime

	genesisHash types.Hash
	now         func() time.Time
	logger      zerolog.Logger

	// checkResults runs the runtime's inherent checks. Replaced in tests.
	checkResults func(*inherent.Data, *runtime.Block) *inherent.CheckResults
}

// New creates a chain whose blocks live in db. Runtime state must live in
// the same underlying database, usually under another prefix, so a block and
// its state changes commit together. The tip is recovered from the block
// store.
func New(db storage.DB, rt *runtime.Runtime) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if rt == nil {
		return nil, fmt.Errorf("runtime is nil")
	}

	if storage.Root(db) != rt.Exec.Store().Root() {
		return nil, ErrSplitStorage
	}

	blocks := NewBlockStore(db, rt)
	tipHash, height, ok, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}

	c := &Chain{
		state:  &State{Height: height, TipHash: tipHash},
		blocks: blocks,
		rt:     rt,
		now:    time.Now,
		logger: klog.Chain,

		checkResults: rt.CheckInherents,
	}
	if ok {
		gen, err := blocks.GetBlockByHeight(0)
		if err != nil {
			return nil, fmt.Errorf("recover genesis: %w", err)
		}
		c.genesisHash = gen.Hash()
	}
	return c, nil
}

// SetClock replaces the clock used for importing inherent data.
func (c *Chain) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// InitGenesis applies and stores the runtime's genesis block on a fresh
// chain. On an initialized chain it only checks that the stored genesis is
// the runtime's.
func (c *Chain) InitGenesis() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.rt.GenesisBlock()
	hash := gen.Hash()

	if !c.genesisHash.IsZero() {
		if c.genesisHash != hash {
			return fmt.Errorf("%w: stored %s, runtime %s", ErrGenesisMismatch, c.genesisHash, hash)
		}
		return nil
	}

	batch := storage.NewBatch(c.blocks.Root())
	defer batch.Discard()
	if err := c.rt.Exec.ApplyGenesisTo(gen, batch); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if err := c.blocks.StageBlock(batch, gen); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}

	c.genesisHash = hash
	c.state.TipHash = hash
	c.state.Height = 0

	c.logger.Info().Str("hash", hash.String()).Msg("Genesis block initialized")
	return nil
}

// WithTip runs fn with the current tip block while holding the chain lock.
// No block can be imported while fn runs.
func (c *Chain) WithTip(fn func(tip *runtime.Block) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genesisHash.IsZero() {
		return ErrNotInitialized
	}
	tip, err := c.blocks.GetBlock(c.state.TipHash)
	if err != nil {
		return fmt.Errorf("load tip: %w", err)
	}
	return fn(tip)
}

// ValidateForNextBlock validates t against the committed state as if it
// were included in the block after the tip.
func (c *Chain) ValidateForNextBlock(t runtime.Transaction) (constraint.Priority, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rt.Exec.ValidateForNextBlock(t)
}

// Runtime returns the runtime driven by the chain.
func (c *Chain) Runtime() *runtime.Runtime {
	return c.rt
}

// Height returns the current chain height.
func (c *Chain) Height() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the hash of the current tip block.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

// GenesisHash returns the hash of the genesis block, zero before InitGenesis.
func (c *Chain) GenesisHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genesisHash
}

// GetBlock retrieves a block by hash.
func (c *Chain) GetBlock(hash types.Hash) (*runtime.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by height.
func (c *Chain) GetBlockByHeight(height uint32) (*runtime.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// HasBlock checks if a block exists.
func (c *Chain) HasBlock(hash types.Hash) bool {
	ok, _ := c.blocks.HasBlock(hash)
	return ok
}

// GetTxLocation returns the height and block hash containing txHash.
func (c *Chain) GetTxLocation(txHash types.Hash) (uint32, types.Hash, error) {
	return c.blocks.GetTxLocation(txHash)
}

// StateRoot returns the commitment over the current output set.
func (c *Chain) StateRoot() (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utxo.Commitment(c.rt.Exec.Store())
}
