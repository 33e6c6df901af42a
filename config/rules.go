package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// =============================================================================
// Protocol Rules
// These MUST match across all nodes or block import diverges.
// =============================================================================

// Block and transaction size limits.
const (
	MaxBlockSize    = 2_000_000 // 2 MB max encoded block size
	MaxBlockTxs     = 500       // Max transactions per block (including inherents)
	MaxTxInputs     = 2500      // Max inputs per transaction
	MaxTxPeeks      = 256       // Max peeks per transaction
	MaxTxEvictions  = 2500      // Max evictions per transaction
	MaxTxOutputs    = 2500      // Max outputs per transaction
	MaxRedeemerSize = 16_384    // 16 KB max redeemer per input
	MaxPayloadSize  = 65_536    // 64 KB max payload body per output
)

// Timestamp defaults. All times are unix milliseconds.
const (
	// DefaultMinimumTimeInterval is the minimum gap between consecutive block timestamps.
	DefaultMinimumTimeInterval uint64 = 2_000
	// DefaultMaxDrift is how far into the future a block timestamp may be
	// relative to the importing node's clock.
	DefaultMaxDrift uint64 = 60_000
	// DefaultMinTimeBeforeCleanup is the age (24h) a timestamp must reach
	// before it may be evicted.
	DefaultMinTimeBeforeCleanup uint64 = 1000 * 60 * 60 * 24
	// DefaultMinBlocksBeforeCleanup is the block age a timestamp must reach
	// before it may be evicted.
	DefaultMinBlocksBeforeCleanup uint32 = 15_000
)

// Rules holds the protocol parameters loaded at startup.
type Rules struct {
	// Network name, informational only.
	Network string `json:"network"`

	// Timestamp piece parameters.
	Timestamp TimestampRules `json:"timestamp"`
}

// TimestampRules parameterizes the timestamp inherent.
type TimestampRules struct {
	MinimumTimeInterval    uint64 `json:"minimum_time_interval_ms"`
	MaxDrift               uint64 `json:"max_drift_ms"`
	MinTimeBeforeCleanup   uint64 `json:"min_time_before_cleanup_ms"`
	MinBlocksBeforeCleanup uint32 `json:"min_blocks_before_cleanup"`
}

// DefaultRules returns the default protocol rules.
func DefaultRules() *Rules {
	return &Rules{
		Network: "ledger-dev",
		Timestamp: TimestampRules{
			MinimumTimeInterval:    DefaultMinimumTimeInterval,
			MaxDrift:               DefaultMaxDrift,
			MinTimeBeforeCleanup:   DefaultMinTimeBeforeCleanup,
			MinBlocksBeforeCleanup: DefaultMinBlocksBeforeCleanup,
		},
	}
}

// =============================================================================
// Rules file I/O
// =============================================================================

// LoadRules loads protocol rules from a JSON file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	r := DefaultRules()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	return r, nil
}

// Save writes the rules to a file.
func (r *Rules) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}

	return nil
}

// Validate checks that the rules are usable.
func (r *Rules) Validate() error {
	ts := r.Timestamp
	if ts.MinimumTimeInterval == 0 {
		return fmt.Errorf("timestamp.minimum_time_interval_ms must be positive")
	}
	if ts.MaxDrift == 0 {
		return fmt.Errorf("timestamp.max_drift_ms must be positive")
	}
	if ts.MinTimeBeforeCleanup == 0 {
		return fmt.Errorf("timestamp.min_time_before_cleanup_ms must be positive")
	}
	if ts.MinBlocksBeforeCleanup == 0 {
		return fmt.Errorf("timestamp.min_blocks_before_cleanup must be positive")
	}
	if ts.MinTimeBeforeCleanup <= ts.MinimumTimeInterval {
		return fmt.Errorf("timestamp.min_time_before_cleanup_ms must exceed minimum_time_interval_ms")
	}
	return nil
}

// Hash returns a BLAKE3 hash of the rules.
// Used to detect nodes running with mismatched parameters.
func (r *Rules) Hash() (types.Hash, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
