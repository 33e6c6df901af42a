package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Validation errors.
var (
	ErrDuplicateRef     = errors.New("ref appears more than once")
	ErrTooManyInputs    = errors.New("too many inputs")
	ErrTooManyPeeks     = errors.New("too many peeks")
	ErrTooManyEvictions = errors.New("too many evictions")
	ErrTooManyOutputs   = errors.New("too many outputs")
	ErrRedeemerTooLarge = errors.New("redeemer too large")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMissingVerifier  = errors.New("output missing verifier")
)

// Validate checks transaction structure: size limits and that no ref is
// consumed, peeked or evicted more than once. It does NOT check that the
// refs exist or that the checker accepts the transaction.
func (t Transaction[C]) Validate() error {
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Peeks) > config.MaxTxPeeks {
		return fmt.Errorf("%w: %d peeks, max %d", ErrTooManyPeeks, len(t.Peeks), config.MaxTxPeeks)
	}
	if len(t.Evictions) > config.MaxTxEvictions {
		return fmt.Errorf("%w: %d evictions, max %d", ErrTooManyEvictions, len(t.Evictions), config.MaxTxEvictions)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	seen := make(map[types.OutputRef]bool, len(t.Inputs)+len(t.Peeks)+len(t.Evictions))
	for i, in := range t.Inputs {
		if seen[in.OutputRef] {
			return fmt.Errorf("input %d: %w: %s", i, ErrDuplicateRef, in.OutputRef)
		}
		seen[in.OutputRef] = true
		if len(in.Redeemer) > config.MaxRedeemerSize {
			return fmt.Errorf("input %d: %w: %d bytes, max %d", i, ErrRedeemerTooLarge, len(in.Redeemer), config.MaxRedeemerSize)
		}
	}
	for i, ref := range t.Peeks {
		if seen[ref] {
			return fmt.Errorf("peek %d: %w: %s", i, ErrDuplicateRef, ref)
		}
		seen[ref] = true
	}
	for i, ref := range t.Evictions {
		if seen[ref] {
			return fmt.Errorf("eviction %d: %w: %s", i, ErrDuplicateRef, ref)
		}
		seen[ref] = true
	}

	for i, out := range t.Outputs {
		if out.Verifier == nil {
			return fmt.Errorf("output %d: %w", i, ErrMissingVerifier)
		}
		if len(out.Payload.Body) > config.MaxPayloadSize {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrPayloadTooLarge, len(out.Payload.Body), config.MaxPayloadSize)
		}
	}

	return nil
}
