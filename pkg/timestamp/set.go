package timestamp

import (
	"github.com/cockroachdb/errors"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// SetTimestamp is the inherent checker that records the block time. It
// encodes to nothing; Config is supplied by the runtime.
type SetTimestamp struct {
	Config Config
}

// EncodeTo writes nothing.
func (SetTimestamp) EncodeTo(*codec.Encoder) {}

// DecodeSetTimestamp returns a decoder that yields SetTimestamp values bound
// to cfg.
func DecodeSetTimestamp(cfg Config) func(*codec.Decoder) (SetTimestamp, error) {
	return func(*codec.Decoder) (SetTimestamp, error) {
		return SetTimestamp{Config: cfg}, nil
	}
}

// CheckData validates a timestamp update: no inputs or evictions, exactly
// one new timestamp recorded at the current height, and a peeked previous
// timestamp exactly one block earlier and at least MinimumTimeInterval older.
// At height 0 the genesis timestamp {0, 0} is accepted without a peek.
func (s SetTimestamp) CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (constraint.Priority, error) {
	log.Timestamp.Debug().Msg("Checking constraints for SetTimestamp")

	if len(inputs) != 0 || len(evictions) != 0 {
		return 0, ErrInputsWhileSettingTimestamp
	}

	if len(outputs) == 0 {
		return 0, ErrMissingNewTimestamp
	}
	next, err := extract(outputs[0])
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, ErrTooManyOutputsWhileSettingTimestamp
	}

	if next.Block != s.Config.BlockHeight() {
		return 0, ErrNewTimestampWrongHeight
	}

	if len(peeks) == 0 {
		// The genesis timestamp has nothing to peek.
		if next == (Timestamp{}) {
			return 0, nil
		}
		return 0, ErrMissingPreviousTimestamp
	}
	prev, err := extract(peeks[0])
	if err != nil {
		return 0, err
	}

	// The genesis timestamp carries time 0, so the interval is waived for
	// the block that follows it.
	if prev.Block != 0 && !atLeastAfter(next.Time, prev.Time, s.Config.Rules().MinimumTimeInterval) {
		return 0, ErrTimestampTooOld
	}

	if uint64(next.Block) != uint64(prev.Block)+1 {
		return 0, ErrPreviousTimestampWrongHeight
	}

	return 0, nil
}

// Identifier implements inherent.Hooks.
func (SetTimestamp) Identifier() inherent.Identifier {
	return inherent.TimestampIdentifier
}

// CreateInherent authors this block's timestamp from the local clock reading
// in the inherent data, peeking the previous block's timestamp output.
func (s SetTimestamp) CreateInherent(authoring *inherent.Data, previous inherent.Previous[SetTimestamp]) tx.Transaction[SetTimestamp] {
	now, err := authoring.Uint64(inherent.TimestampIdentifier)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "timestamp inherent data must be present when authoring"))
	}
	height := s.Config.BlockHeight()

	log.Timestamp.Debug().
		Uint64("local_time", now).
		Uint32("height", height).
		Msg("Creating timestamp inherent")

	return tx.Transaction[SetTimestamp]{
		Peeks:   []types.OutputRef{{TxHash: previous.Hash, Index: 0}},
		Outputs: []tx.Output{tx.NewOutput(New(now, height), s.unspendable())},
		Checker: s,
	}
}

// CheckInherent rejects blocks whose time is more than MaxDrift ahead of the
// importer's clock. The importer's clock reading is required; a block time in
// the past is left to CheckData.
func (s SetTimestamp) CheckInherent(importing *inherent.Data, in tx.Transaction[SetTimestamp], results *inherent.CheckResults) {
	local, err := importing.Uint64(inherent.TimestampIdentifier)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "timestamp inherent data must be present when importing"))
	}

	if len(in.Outputs) == 0 {
		s.putError(results, inherent.Fatal(ErrMalformedInherent))
		return
	}
	onChain, err := dynamic.Extract[Timestamp](in.Outputs[0].Payload)
	if err != nil {
		s.putError(results, inherent.Fatal(errors.Wrap(ErrMalformedInherent, err.Error())))
		return
	}

	log.Timestamp.Debug().
		Uint64("local_time", local).
		Uint64("block_time", onChain.Time).
		Uint32("block_height", onChain.Block).
		Msg("Checking timestamp inherent")

	maxDrift := s.Config.Rules().MaxDrift
	if onChain.Time > local && onChain.Time-local > maxDrift {
		log.Timestamp.Debug().
			Uint64("drift", onChain.Time-local).
			Uint64("max_drift", maxDrift).
			Msg("Block timestamp is too far in the future")
		s.putError(results, inherent.Fatal(ErrTooFarInFuture))
	}
}

// GenesisTransactions creates the initial Timestamp{0, 0}.
func (s SetTimestamp) GenesisTransactions() []tx.Transaction[SetTimestamp] {
	return []tx.Transaction[SetTimestamp]{{
		Outputs: []tx.Output{tx.NewOutput(New(0, 0), s.unspendable())},
		Checker: s,
	}}
}

func (s SetTimestamp) unspendable() verifier.Verifier {
	v, err := s.Config.NewUnspendable()
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "timestamp inherent requires an unspendable verifier"))
	}
	return v
}

func (s SetTimestamp) putError(results *inherent.CheckResults, err error) {
	if perr := results.PutError(inherent.TimestampIdentifier, err); perr != nil {
		log.Timestamp.Warn().Err(perr).Msg("Could not record timestamp inherent error")
	}
}

// atLeastAfter reports whether next >= prev + gap without overflowing.
func atLeastAfter(next, prev, gap uint64) bool {
	return next >= prev && next-prev >= gap
}
