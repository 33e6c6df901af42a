// Package tx defines outputs, transactions and their canonical encoding.
package tx

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Output is a unit of state: an opaque payload guarded by a verifier.
// Outputs are immutable once included; updating state means consuming the
// old output and creating a new one.
type Output struct {
	Payload  dynamic.Data
	Verifier verifier.Verifier
}

// NewOutput builds an output holding v.
func NewOutput(v dynamic.UtxoData, ver verifier.Verifier) Output {
	return Output{Payload: dynamic.New(v), Verifier: ver}
}

// EncodeTo writes payload | verifier.
func (o Output) EncodeTo(e *codec.Encoder) {
	o.Payload.EncodeTo(e)
	verifier.Encode(e, o.Verifier)
}

// Payloads strips outputs down to their payloads.
func Payloads(outs []Output) []dynamic.Data {
	if outs == nil {
		return nil
	}
	data := make([]dynamic.Data, len(outs))
	for i, o := range outs {
		data[i] = o.Payload
	}
	return data
}

// Input consumes an existing output. The redeemer is the proof handed to the
// output's verifier.
type Input struct {
	OutputRef types.OutputRef
	Redeemer  []byte
}

// EncodeTo writes ref | varbytes(redeemer).
func (in Input) EncodeTo(e *codec.Encoder) {
	in.OutputRef.EncodeTo(e)
	e.VarBytes(in.Redeemer)
}

// DecodeFrom reads an input written by EncodeTo.
func (in *Input) DecodeFrom(d *codec.Decoder) error {
	d.Value(&in.OutputRef)
	in.Redeemer = d.VarBytes()
	return d.Err()
}

// Transaction is a proposed state transition.
//
// Inputs are consumed and must satisfy their verifiers. Peeks are read
// without being consumed. Evictions are removed without verification; the
// checker alone decides whether that is allowed. Outputs are created at
// OutputRef{Hash(), i}. The checker is a serializable value that decides
// whether the whole transition is valid.
type Transaction[C codec.Encodable] struct {
	Inputs    []Input
	Peeks     []types.OutputRef
	Evictions []types.OutputRef
	Outputs   []Output
	Checker   C
}

// EncodeTo writes the canonical encoding:
// inputs | peeks | evictions | outputs | checker.
func (t Transaction[C]) EncodeTo(e *codec.Encoder) {
	e.Len(len(t.Inputs))
	for _, in := range t.Inputs {
		in.EncodeTo(e)
	}
	types.EncodeRefs(e, t.Peeks)
	types.EncodeRefs(e, t.Evictions)
	e.Len(len(t.Outputs))
	for _, out := range t.Outputs {
		out.EncodeTo(e)
	}
	t.Checker.EncodeTo(e)
}

// Bytes returns the canonical encoding.
func (t Transaction[C]) Bytes() []byte {
	return codec.Encode(t)
}

// Hash computes the transaction ID (BLAKE3 hash of the canonical encoding,
// redeemers included).
func (t Transaction[C]) Hash() types.Hash {
	return crypto.Hash(t.Bytes())
}

// SigningBytes returns the simplified transaction handed to verifiers: the
// canonical encoding with every redeemer emptied, so a signature can cover
// the whole transaction without covering itself.
func (t Transaction[C]) SigningBytes() []byte {
	simple := t
	simple.Inputs = make([]Input, len(t.Inputs))
	for i, in := range t.Inputs {
		simple.Inputs[i] = Input{OutputRef: in.OutputRef}
	}
	return simple.Bytes()
}

// OutputRef returns the ref under which output i is stored once the
// transaction is applied.
func (t Transaction[C]) OutputRef(i uint32) types.OutputRef {
	return types.OutputRef{TxHash: t.Hash(), Index: i}
}

// Refs returns every ref the transaction touches: inputs, peeks, evictions.
func (t Transaction[C]) Refs() []types.OutputRef {
	refs := make([]types.OutputRef, 0, len(t.Inputs)+len(t.Peeks)+len(t.Evictions))
	for _, in := range t.Inputs {
		refs = append(refs, in.OutputRef)
	}
	refs = append(refs, t.Peeks...)
	refs = append(refs, t.Evictions...)
	return refs
}

// Map returns a copy of t with its checker transformed by f. The rest of the
// transaction is shared, not copied.
func Map[C, D codec.Encodable](t Transaction[C], f func(C) D) Transaction[D] {
	return Transaction[D]{
		Inputs:    t.Inputs,
		Peeks:     t.Peeks,
		Evictions: t.Evictions,
		Outputs:   t.Outputs,
		Checker:   f(t.Checker),
	}
}
