// Package executive applies transactions and blocks to the output set.
//
// The executive resolves the refs a transaction names, runs the verifiers of
// consumed outputs and hands the resolved outputs to the transaction's
// checker. Blocks are applied through a utxo.Overlay so a failing block
// leaves no trace in the store.
package executive

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Execution errors.
var (
	ErrMissingInput      = errors.New("input not found in output set")
	ErrMissingPeek       = errors.New("peek not found in output set")
	ErrMissingEviction   = errors.New("eviction not found in output set")
	ErrVerifierFailed    = errors.New("verifier rejected redeemer")
	ErrDuplicateRef      = tx.ErrDuplicateRef
	ErrInherentOrdering  = errors.New("inherents must precede all other extrinsics")
	ErrBadExtrinsicsRoot = errors.New("extrinsics root mismatch")
	ErrBadHeight         = errors.New("bad block height")
	ErrConstraintFailed  = errors.New("constraint checker failed")
	ErrBadGenesis        = errors.New("genesis transactions may only create outputs")
)

// heightKey holds the height of the block being executed.
var heightKey = []byte("x/height")

// Checker is the checker type a runtime executes: a full constraint checker
// that also knows whether its transactions are inherents.
type Checker interface {
	constraint.Checker
	IsInherent() bool
}

// Executive executes transactions with checker type C against a Store.
type Executive[C Checker] struct {
	db     storage.DB
	store  *utxo.Store
	logger zerolog.Logger
}

// New creates an executive. db holds the transient execution keys; store is
// the committed output set.
func New[C Checker](db storage.DB, store *utxo.Store) *Executive[C] {
	return &Executive[C]{
		db:     db,
		store:  store,
		logger: klog.Executive,
	}
}

// Store returns the committed output set.
func (e *Executive[C]) Store() *utxo.Store {
	return e.store
}

// SetBlockHeight records the height of the block about to be executed.
func (e *Executive[C]) SetBlockHeight(h uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], h)
	if err := e.db.Put(heightKey, buf[:]); err != nil {
		return fmt.Errorf("store block height: %w", err)
	}
	return nil
}

// BlockHeight returns the height recorded by SetBlockHeight. Reading it
// before any block was opened is a host fault and panics.
func (e *Executive[C]) BlockHeight() uint32 {
	b, err := e.db.Get(heightKey)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "block height read before it was set"))
	}
	if len(b) != 4 {
		panic(errors.AssertionFailedf("block height entry has %d bytes", len(b)))
	}
	return binary.LittleEndian.Uint32(b)
}

// ValidateTransaction checks t against set at the current block height and
// returns its priority. It never writes.
func (e *Executive[C]) ValidateTransaction(set utxo.Set, t tx.Transaction[C]) (constraint.Priority, error) {
	return e.validate(set, t, e.BlockHeight())
}

// ValidateForNextBlock checks t against the committed store as if it were
// included in the block after the current one.
func (e *Executive[C]) ValidateForNextBlock(t tx.Transaction[C]) (constraint.Priority, error) {
	return e.validate(e.store, t, e.BlockHeight()+1)
}

func (e *Executive[C]) validate(set utxo.Set, t tx.Transaction[C], height uint32) (constraint.Priority, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	simplified := t.SigningBytes()

	inputs := make([]tx.Output, len(t.Inputs))
	for i, in := range t.Inputs {
		out, err := resolve(set, in.OutputRef, ErrMissingInput)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		if !out.Verifier.Verify(simplified, height, in.Redeemer) {
			return 0, fmt.Errorf("input %d (%s, %s): %w", i, in.OutputRef, out.Verifier.Kind(), ErrVerifierFailed)
		}
		inputs[i] = out
	}

	// Peeks are read-only, so their verifiers are not consulted.
	peeks := make([]tx.Output, len(t.Peeks))
	for i, ref := range t.Peeks {
		out, err := resolve(set, ref, ErrMissingPeek)
		if err != nil {
			return 0, fmt.Errorf("peek %d: %w", i, err)
		}
		peeks[i] = out
	}

	// Evictions bypass verifiers; the checker alone authorizes them.
	evictions := make([]tx.Output, len(t.Evictions))
	for i, ref := range t.Evictions {
		out, err := resolve(set, ref, ErrMissingEviction)
		if err != nil {
			return 0, fmt.Errorf("eviction %d: %w", i, err)
		}
		evictions[i] = out
	}

	priority, err := t.Checker.Check(inputs, peeks, evictions, t.Outputs)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConstraintFailed, err)
	}
	return priority, nil
}

func resolve(set utxo.Set, ref types.OutputRef, missing error) (tx.Output, error) {
	out, err := set.Get(ref)
	if errors.Is(err, utxo.ErrNotFound) {
		return tx.Output{}, fmt.Errorf("%w: %s", missing, ref)
	}
	if err != nil {
		return tx.Output{}, err
	}
	return out, nil
}

// ApplyTransaction validates t and applies it to set: inputs and evictions
// are removed, outputs are created at t.OutputRef(i).
func (e *Executive[C]) ApplyTransaction(set utxo.Set, t tx.Transaction[C]) error {
	if _, err := e.ValidateTransaction(set, t); err != nil {
		return err
	}

	for _, in := range t.Inputs {
		if err := set.Delete(in.OutputRef); err != nil {
			return fmt.Errorf("consume %s: %w", in.OutputRef, err)
		}
	}
	for _, ref := range t.Evictions {
		if err := set.Delete(ref); err != nil {
			return fmt.Errorf("evict %s: %w", ref, err)
		}
	}
	return insertOutputs(set, t)
}

func insertOutputs[C Checker](set utxo.Set, t tx.Transaction[C]) error {
	hash := t.Hash()
	for i, out := range t.Outputs {
		ref := types.OutputRef{TxHash: hash, Index: uint32(i)}
		if err := set.Put(ref, out); err != nil {
			return fmt.Errorf("create %s: %w", ref, err)
		}
	}
	return nil
}

// CheckInherentOrdering requires every inherent to precede every
// non-inherent extrinsic.
func CheckInherentOrdering[C Checker](extrinsics []tx.Transaction[C]) error {
	seenOrdinary := false
	for i, t := range extrinsics {
		if !t.Checker.IsInherent() {
			seenOrdinary = true
			continue
		}
		if seenOrdinary {
			return fmt.Errorf("%w: inherent at index %d", ErrInherentOrdering, i)
		}
	}
	return nil
}

func checkRoot[C Checker](b *block.Block[C]) error {
	if b == nil || b.Header == nil {
		return block.ErrNilHeader
	}
	if root := b.ComputeExtrinsicsRoot(); root != b.Header.ExtrinsicsRoot {
		return fmt.Errorf("%w: header %s, computed %s", ErrBadExtrinsicsRoot, b.Header.ExtrinsicsRoot, root)
	}
	return nil
}

// ApplyBlock executes every extrinsic of b in order and commits the result
// atomically. On error nothing is written to the output set.
func (e *Executive[C]) ApplyBlock(b *block.Block[C]) error {
	return e.commit(func(batch storage.Batch) error {
		return e.ApplyBlockTo(b, batch)
	})
}

// ApplyBlockTo executes every extrinsic of b in order and stages the
// resulting output set changes into batch, which must be a batch on the
// store's Root. The caller commits batch, usually together with its own
// writes. On error nothing has been staged.
func (e *Executive[C]) ApplyBlockTo(b *block.Block[C], batch storage.Batch) error {
	if err := checkRoot(b); err != nil {
		return err
	}
	if b.Height() == 0 {
		return fmt.Errorf("%w: height 0 is reserved for genesis", ErrBadHeight)
	}
	if err := CheckInherentOrdering(b.Extrinsics); err != nil {
		return err
	}

	done := klog.Benchmark("apply_block")
	defer done()

	if err := e.SetBlockHeight(b.Height()); err != nil {
		return err
	}

	overlay := utxo.NewOverlay(e.store)
	for i, t := range b.Extrinsics {
		if err := e.ApplyTransaction(overlay, t); err != nil {
			return fmt.Errorf("extrinsic %d (%s): %w", i, t.Hash(), err)
		}
	}
	if err := overlay.StageTo(batch); err != nil {
		return fmt.Errorf("stage block: %w", err)
	}

	klog.WithBlock(e.logger, b.Height(), b.Hash()).Debug().
		Int("extrinsics", len(b.Extrinsics)).
		Int("changes", overlay.Len()).
		Msg("Executed block")
	return nil
}

// ApplyGenesis inserts the outputs of the genesis block without running any
// verifier or checker and commits them.
func (e *Executive[C]) ApplyGenesis(b *block.Block[C]) error {
	return e.commit(func(batch storage.Batch) error {
		return e.ApplyGenesisTo(b, batch)
	})
}

// ApplyGenesisTo stages the outputs of the genesis block into batch.
// Genesis transactions must not spend, peek or evict.
func (e *Executive[C]) ApplyGenesisTo(b *block.Block[C], batch storage.Batch) error {
	if err := checkRoot(b); err != nil {
		return err
	}
	if b.Height() != 0 {
		return fmt.Errorf("%w: genesis at height %d", ErrBadHeight, b.Height())
	}

	if err := e.SetBlockHeight(0); err != nil {
		return err
	}

	overlay := utxo.NewOverlay(e.store)
	for i, t := range b.Extrinsics {
		if len(t.Inputs) != 0 || len(t.Peeks) != 0 || len(t.Evictions) != 0 {
			return fmt.Errorf("genesis extrinsic %d: %w", i, ErrBadGenesis)
		}
		if err := insertOutputs(overlay, t); err != nil {
			return fmt.Errorf("genesis extrinsic %d: %w", i, err)
		}
	}
	if err := overlay.StageTo(batch); err != nil {
		return fmt.Errorf("stage genesis: %w", err)
	}

	e.logger.Info().
		Str("hash", b.Hash().String()).
		Int("extrinsics", len(b.Extrinsics)).
		Msg("Applied genesis block")
	return nil
}

// commit runs stage against a fresh batch on the store's root and commits it
// when stage succeeds.
func (e *Executive[C]) commit(stage func(storage.Batch) error) error {
	batch := storage.NewBatch(e.store.Root())
	defer batch.Discard()
	if err := stage(batch); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
