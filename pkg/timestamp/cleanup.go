package timestamp

import (
	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
)

// CleanUpTimestamp lets anyone evict old timestamps. It peeks a recent
// reference timestamp and evicts any number of timestamps that are older
// than the reference by more than both MinTimeBeforeCleanup and
// MinBlocksBeforeCleanup. It encodes to nothing.
type CleanUpTimestamp struct {
	Config Config
}

// EncodeTo writes nothing.
func (CleanUpTimestamp) EncodeTo(*codec.Encoder) {}

// DecodeCleanUpTimestamp returns a decoder bound to cfg.
func DecodeCleanUpTimestamp(cfg Config) func(*codec.Decoder) (CleanUpTimestamp, error) {
	return func(*codec.Decoder) (CleanUpTimestamp, error) {
		return CleanUpTimestamp{Config: cfg}, nil
	}
}

// CheckData implements constraint.SimpleChecker.
func (c CleanUpTimestamp) CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (constraint.Priority, error) {
	if len(inputs) != 0 {
		return 0, ErrCleanupEvictionsOnly
	}

	if len(peeks) == 0 {
		return 0, ErrCleanupRequiresOneReference
	}
	ref, err := extract(peeks[0])
	if err != nil {
		return 0, err
	}

	if len(outputs) != 0 {
		return 0, ErrCleanupCannotCreateState
	}

	rules := c.Config.Rules()
	for _, d := range evictions {
		old, err := extract(d)
		if err != nil {
			return 0, err
		}
		if !olderThan(old.Time, ref.Time, rules.MinTimeBeforeCleanup) {
			return 0, ErrDontBeSoHasty
		}
		if !olderThan(uint64(old.Block), uint64(ref.Block), uint64(rules.MinBlocksBeforeCleanup)) {
			return 0, ErrDontBeSoHasty
		}
	}

	log.Timestamp.Debug().
		Int("evicted", len(evictions)).
		Uint64("reference_time", ref.Time).
		Msg("Timestamp cleanup accepted")

	return 0, nil
}

// olderThan reports whether old + gap < ref without overflowing.
func olderThan(old, ref, gap uint64) bool {
	return ref > old && ref-old > gap
}
