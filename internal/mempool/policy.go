package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// DefaultMaxTxSize is the maximum encoded transaction size in bytes.
const DefaultMaxTxSize = 100_000

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxSize int // Maximum encoded transaction size.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize: DefaultMaxTxSize,
	}
}

// CheckPolicy validates a transaction against policy rules.
// Policy rules can vary per node; the protocol limits are enforced here as
// well to reject early before full validation.
func CheckPolicy[C Checker](p *Policy, transaction tx.Transaction[C]) error {
	size := len(transaction.Bytes())
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if len(transaction.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", len(transaction.Inputs), config.MaxTxInputs)
	}
	if len(transaction.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(transaction.Outputs), config.MaxTxOutputs)
	}
	for i, out := range transaction.Outputs {
		if len(out.Payload.Body) > config.MaxPayloadSize {
			return fmt.Errorf("output %d payload too large: %d bytes, max %d", i, len(out.Payload.Body), config.MaxPayloadSize)
		}
	}
	return nil
}
