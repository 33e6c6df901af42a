// Package runtime assembles the ledger's pieces into one executable
// runtime: the aggregate checker, its codec, the executive running it and
// the inherent hooks of every inherent piece.
package runtime

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/internal/executive"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
	"github.com/Klingon-tech/klingnet-ledger/pkg/timestamp"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Transaction and Block are the runtime's concrete extrinsic and block types.
type (
	Transaction = tx.Transaction[Checker]
	Block       = block.Block[Checker]
)

// Runtime binds the aggregate checker to an executive and a codec.
type Runtime struct {
	Exec      *executive.Executive[Checker]
	Codec     tx.Codec[Checker]
	Timestamp timestamp.Config

	logger zerolog.Logger
}

// New builds a runtime whose state lives in db. Outputs may carry any
// verifier kind allowed by verifiers; nil allows every built-in kind.
func New(db storage.DB, rules timestamp.Rules, verifiers *verifier.Registry) *Runtime {
	if verifiers == nil {
		verifiers = verifier.NewRegistry()
	}
	exec := executive.New[Checker](db, utxo.NewStore(db, verifiers))
	cfg := timestamp.NewConfig(rules, exec, verifiers)

	return &Runtime{
		Exec: exec,
		Codec: tx.Codec[Checker]{
			Verifiers: verifiers,
			Checker:   DecodeChecker(cfg),
		},
		Timestamp: cfg,
		logger:    klog.WithComponent("runtime"),
	}
}

// timestampPiece is the prototype the timestamp hooks are called on.
func (r *Runtime) timestampPiece() inherent.Adapter[timestamp.SetTimestamp] {
	return inherent.Adapt(timestamp.SetTimestamp{Config: r.Timestamp})
}

// SetTimestamp returns the timestamp inherent checker bound to this runtime.
func (r *Runtime) SetTimestamp() TimestampChecker {
	return TimestampChecker{r.timestampPiece()}
}

// CleanUpTimestamp returns the timestamp clean-up checker bound to this runtime.
func (r *Runtime) CleanUpTimestamp() CleanUpChecker {
	return CleanUpChecker{constraint.Promote(timestamp.CleanUpTimestamp{Config: r.Timestamp})}
}

// DecodeTransaction decodes a standalone transaction encoding.
func (r *Runtime) DecodeTransaction(b []byte) (Transaction, error) {
	return r.Codec.Decode(b)
}

// DecodeBlock decodes a standalone block encoding.
func (r *Runtime) DecodeBlock(b []byte) (*Block, error) {
	return block.Decode(b, r.Codec)
}

// GenesisBlock builds the genesis block from the genesis transactions of
// every inherent piece.
func (r *Runtime) GenesisBlock() *Block {
	txs := toRuntime(r.timestampPiece().GenesisTransactions())
	b := block.NewBlock(&block.Header{Version: block.CurrentVersion}, txs)
	b.Header.ExtrinsicsRoot = b.ComputeExtrinsicsRoot()
	return b
}

// CreateInherents builds the inherents of the block being authored. The
// parent block is read from the authoring data and scraped for its
// inherents; the executive's block height must already be set.
func (r *Runtime) CreateInherents(authoring *inherent.Data) ([]Transaction, error) {
	raw, err := authoring.Get(inherent.ParentBlockIdentifier)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "parent block inherent data must be present when authoring"))
	}
	parent, err := r.DecodeBlock(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode parent block")
	}

	piece := r.timestampPiece()
	scraped := inherent.ScrapePrevious(parent, isTimestamp)
	previous := make([]inherent.Previous[inherent.Adapter[timestamp.SetTimestamp]], len(scraped))
	for i, p := range scraped {
		previous[i] = inherent.Previous[inherent.Adapter[timestamp.SetTimestamp]]{
			Tx:   tx.Map(p.Tx, asTimestamp),
			Hash: p.Hash,
		}
	}

	inherents := toRuntime(piece.CreateInherents(authoring, previous))
	klog.WithBlock(r.logger, r.Exec.BlockHeight(), parent.Hash()).Debug().
		Int("inherents", len(inherents)).
		Msg("Created inherents on top of parent")
	return inherents, nil
}

// CheckInherents runs every inherent piece's off-chain checks over the
// inherents of an imported block.
func (r *Runtime) CheckInherents(importing *inherent.Data, b *Block) *inherent.CheckResults {
	results := inherent.NewCheckResults()

	var timestamps []tx.Transaction[inherent.Adapter[timestamp.SetTimestamp]]
	for _, t := range b.Extrinsics {
		if !t.Checker.IsInherent() {
			break
		}
		if isTimestamp(t.Checker) {
			timestamps = append(timestamps, tx.Map(t, asTimestamp))
		}
	}
	r.timestampPiece().CheckInherents(importing, timestamps, results)
	return results
}

// CleanUpTransaction builds a transaction evicting old timestamps, using the
// timestamp at reference as proof of elapsed time.
func (r *Runtime) CleanUpTransaction(reference types.OutputRef, evictions []types.OutputRef) Transaction {
	return Transaction{
		Peeks:     []types.OutputRef{reference},
		Evictions: evictions,
		Checker:   r.CleanUpTimestamp(),
	}
}

func isTimestamp(c Checker) bool {
	_, ok := c.(TimestampChecker)
	return ok
}

func asTimestamp(c Checker) inherent.Adapter[timestamp.SetTimestamp] {
	return c.(TimestampChecker).Adapter
}

func toRuntime(txs []tx.Transaction[inherent.Adapter[timestamp.SetTimestamp]]) []Transaction {
	out := make([]Transaction, len(txs))
	for i, t := range txs {
		out[i] = tx.Map(t, func(a inherent.Adapter[timestamp.SetTimestamp]) Checker {
			return TimestampChecker{a}
		})
	}
	return out
}
