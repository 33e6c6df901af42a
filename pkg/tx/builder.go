package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Builder constructs transactions incrementally.
type Builder[C codec.Encodable] struct {
	tx Transaction[C]
}

// NewBuilder creates a new transaction builder with the given checker.
func NewBuilder[C codec.Encodable](checker C) *Builder[C] {
	return &Builder[C]{tx: Transaction[C]{Checker: checker}}
}

// AddInput adds an input consuming ref. The redeemer is filled in by Sign
// or SetRedeemer.
func (b *Builder[C]) AddInput(ref types.OutputRef) *Builder[C] {
	b.tx.Inputs = append(b.tx.Inputs, Input{OutputRef: ref})
	return b
}

// AddPeek adds a read-only reference.
func (b *Builder[C]) AddPeek(ref types.OutputRef) *Builder[C] {
	b.tx.Peeks = append(b.tx.Peeks, ref)
	return b
}

// AddEviction adds a ref to remove without verification.
func (b *Builder[C]) AddEviction(ref types.OutputRef) *Builder[C] {
	b.tx.Evictions = append(b.tx.Evictions, ref)
	return b
}

// AddOutput adds an output holding v guarded by ver.
func (b *Builder[C]) AddOutput(v dynamic.UtxoData, ver verifier.Verifier) *Builder[C] {
	b.tx.Outputs = append(b.tx.Outputs, NewOutput(v, ver))
	return b
}

// SetRedeemer sets the redeemer of input i.
func (b *Builder[C]) SetRedeemer(i int, redeemer []byte) error {
	if i < 0 || i >= len(b.tx.Inputs) {
		return fmt.Errorf("input %d out of range", i)
	}
	b.tx.Inputs[i].Redeemer = redeemer
	return nil
}

// Sign signs the simplified transaction with key and uses the signature as
// the redeemer of every input (single-key spending of SigCheck outputs).
func (b *Builder[C]) Sign(key *crypto.PrivateKey) error {
	sig, err := key.SignMessage(b.tx.SigningBytes())
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Redeemer = sig
	}
	return nil
}

// SignInputs signs each listed input with its own key. Inputs not present in
// signers keep their current redeemer.
func (b *Builder[C]) SignInputs(signers map[int]*crypto.PrivateKey) error {
	msg := b.tx.SigningBytes()
	for i, key := range signers {
		if i < 0 || i >= len(b.tx.Inputs) {
			return fmt.Errorf("input %d out of range", i)
		}
		sig, err := key.SignMessage(msg)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
		b.tx.Inputs[i].Redeemer = sig
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call Validate separately.
func (b *Builder[C]) Build() Transaction[C] {
	return b.tx
}
