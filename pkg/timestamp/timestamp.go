// Package timestamp records the block time on chain through an inherent.
//
// Every block carries one SetTimestamp inherent that peeks the previous
// block's timestamp output and creates a new one. Old timestamp outputs are
// never spent (they are guarded by an unspendable verifier); once they are
// old enough anyone may evict them in bulk with a CleanUpTimestamp
// transaction.
package timestamp

import (
	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Timestamp is the payload stored by the timestamp inherent.
type Timestamp struct {
	// Time in unix milliseconds.
	Time uint64
	// Block is the height of the block that set this time.
	Block uint32
}

// New returns a Timestamp.
func New(time uint64, block uint32) Timestamp {
	return Timestamp{Time: time, Block: block}
}

// TypeID implements dynamic.UtxoData.
func (Timestamp) TypeID() dynamic.TypeID {
	return dynamic.TypeID{'t', 'i', 'm', 'e'}
}

// EncodeTo writes time(u64) | block(u32).
func (t Timestamp) EncodeTo(e *codec.Encoder) {
	e.Uint64(t.Time)
	e.Uint32(t.Block)
}

// DecodeFrom reads a Timestamp.
func (t *Timestamp) DecodeFrom(d *codec.Decoder) error {
	t.Time = d.Uint64()
	t.Block = d.Uint32()
	return d.Err()
}

// Rules parameterizes the piece. All times are milliseconds.
type Rules struct {
	MinimumTimeInterval    uint64
	MaxDrift               uint64
	MinTimeBeforeCleanup   uint64
	MinBlocksBeforeCleanup uint32
}

// DefaultRules returns the protocol defaults.
func DefaultRules() Rules {
	return RulesFromConfig(config.DefaultRules().Timestamp)
}

// RulesFromConfig converts loaded protocol rules.
func RulesFromConfig(r config.TimestampRules) Rules {
	return Rules{
		MinimumTimeInterval:    r.MinimumTimeInterval,
		MaxDrift:               r.MaxDrift,
		MinTimeBeforeCleanup:   r.MinTimeBeforeCleanup,
		MinBlocksBeforeCleanup: r.MinBlocksBeforeCleanup,
	}
}

// HeightSource reports the height of the block being built or executed.
type HeightSource interface {
	BlockHeight() uint32
}

// FixedHeight is a HeightSource that always returns the same height.
type FixedHeight uint32

// BlockHeight implements HeightSource.
func (h FixedHeight) BlockHeight() uint32 {
	return uint32(h)
}

// Config is the environment the piece's checkers read. It is injected by the
// runtime when checkers are decoded and is never encoded.
type Config interface {
	HeightSource
	Rules() Rules
	NewUnspendable() (verifier.Verifier, error)
}

type staticConfig struct {
	HeightSource
	rules     Rules
	verifiers *verifier.Registry
}

// NewConfig combines rules, a height source and the runtime's verifier set.
func NewConfig(rules Rules, heights HeightSource, verifiers *verifier.Registry) Config {
	return staticConfig{HeightSource: heights, rules: rules, verifiers: verifiers}
}

func (c staticConfig) Rules() Rules { return c.rules }

func (c staticConfig) NewUnspendable() (verifier.Verifier, error) {
	return c.verifiers.NewUnspendable()
}

// extract decodes a payload as a Timestamp, mapping any typing failure to
// ErrBadlyTyped.
func extract(d dynamic.Data) (Timestamp, error) {
	ts, err := dynamic.Extract[Timestamp](d)
	if err != nil {
		return Timestamp{}, ErrBadlyTyped
	}
	return ts, nil
}
