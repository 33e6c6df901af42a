package inherent

import (
	"github.com/cockroachdb/errors"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Cardinality errors recorded by the Adapter. Both are reported as fatal.
var (
	ErrNoInherent        = errors.New("expected exactly one inherent extrinsic but found zero")
	ErrMultipleInherents = errors.New("expected exactly one inherent extrinsic but found multiple")
)

// Previous is an inherent found in the parent block together with its hash,
// from which the refs of its outputs are derived.
type Previous[C codec.Encodable] struct {
	Tx   tx.Transaction[C]
	Hash types.Hash
}

// Hooks is implemented by pieces that author one inherent per block.
//
// Each block carries exactly one inherent per identifier. Per block the
// inherent moves NotYetAuthored -> Authored (CreateInherent on the author)
// -> Imported (CheckInherent on every importer) -> Executed (normal
// transaction execution). Hooks are called on a prototype value of C, which
// may carry environment the piece needs; they must not depend on any other
// state.
type Hooks[C codec.Encodable] interface {
	constraint.SimpleChecker

	// Identifier names the inherent data entry the piece reads.
	Identifier() Identifier

	// CreateInherent builds the inherent for a locally authored block from
	// the author's inherent data and the previous block's inherent. It must
	// be deterministic given its arguments.
	CreateInherent(authoring *Data, previous Previous[C]) tx.Transaction[C]

	// CheckInherent performs off-chain sanity checks on an imported block's
	// inherent against the importer's own inherent data, recording problems
	// in results. Importer data may differ from the author's.
	CheckInherent(importing *Data, inherent tx.Transaction[C], results *CheckResults)

	// GenesisTransactions returns the transactions the piece needs in the
	// genesis block. May be empty.
	GenesisTransactions() []tx.Transaction[C]
}

// Adapter declares at the runtime level that a piece provides inherent
// hooks. It enforces that exactly one inherent is present before delegating
// to the piece, and encodes exactly like the inner checker.
type Adapter[C Hooks[C]] struct {
	Inner C
}

// Adapt wraps a hooks prototype.
func Adapt[C Hooks[C]](inner C) Adapter[C] {
	return Adapter[C]{Inner: inner}
}

// Wrap re-types a transaction's checker as the adapter.
func Wrap[C Hooks[C]](t tx.Transaction[C]) tx.Transaction[Adapter[C]] {
	return tx.Map(t, Adapt[C])
}

// Unwrap re-types an adapter transaction back to the inner checker.
func Unwrap[C Hooks[C]](t tx.Transaction[Adapter[C]]) tx.Transaction[C] {
	return tx.Map(t, func(a Adapter[C]) C { return a.Inner })
}

// EncodeTo writes the inner checker unchanged.
func (a Adapter[C]) EncodeTo(e *codec.Encoder) {
	a.Inner.EncodeTo(e)
}

// CheckData delegates to the inner simple checker.
func (a Adapter[C]) CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (constraint.Priority, error) {
	return a.Inner.CheckData(inputs, peeks, evictions, outputs)
}

// Check strips outputs to their payloads and delegates to the inner checker.
func (a Adapter[C]) Check(inputs, peeks, evictions, outputs []tx.Output) (constraint.Priority, error) {
	return constraint.Promote(a.Inner).Check(inputs, peeks, evictions, outputs)
}

// IsInherent reports that transactions using this checker are inherents.
func (a Adapter[C]) IsInherent() bool {
	return true
}

// Identifier returns the inner piece's identifier.
func (a Adapter[C]) Identifier() Identifier {
	return a.Inner.Identifier()
}

// CreateInherents builds this block's inherent from exactly one previous
// inherent. Zero or several previous inherents mean the parent block broke
// the one-inherent-per-block rule that import enforces, which is a host
// fault, so it panics.
func (a Adapter[C]) CreateInherents(authoring *Data, previous []Previous[Adapter[C]]) []tx.Transaction[Adapter[C]] {
	switch {
	case len(previous) > 1:
		panic(errors.AssertionFailedf(
			"authoring inherent %s, but %d previous inherents were supplied", a.Identifier(), len(previous)))
	case len(previous) == 0:
		panic(errors.AssertionFailedf(
			"authoring inherent %s, but no previous inherent was supplied", a.Identifier()))
	}

	prev := Previous[C]{Tx: Unwrap(previous[0].Tx), Hash: previous[0].Hash}
	current := a.Inner.CreateInherent(authoring, prev)
	return []tx.Transaction[Adapter[C]]{Wrap(current)}
}

// CheckInherents requires exactly one inherent and delegates its check.
func (a Adapter[C]) CheckInherents(importing *Data, inherents []tx.Transaction[Adapter[C]], results *CheckResults) {
	var cardinality error
	switch {
	case len(inherents) == 0:
		cardinality = ErrNoInherent
	case len(inherents) > 1:
		cardinality = ErrMultipleInherents
	}
	if cardinality != nil {
		if err := results.PutError(a.Identifier(), Fatal(cardinality)); err != nil {
			log.Inherent.Warn().
				Err(err).
				Str("identifier", a.Identifier().String()).
				Msg("Could not record inherent cardinality error")
		}
		return
	}

	a.Inner.CheckInherent(importing, Unwrap(inherents[0]), results)
}

// GenesisTransactions wraps the inner genesis transactions.
func (a Adapter[C]) GenesisTransactions() []tx.Transaction[Adapter[C]] {
	inner := a.Inner.GenesisTransactions()
	out := make([]tx.Transaction[Adapter[C]], len(inner))
	for i, t := range inner {
		out[i] = Wrap(t)
	}
	return out
}

// DecodeAdapter lifts a decoder for C into a decoder for Adapter[C].
func DecodeAdapter[C Hooks[C]](inner func(d *codec.Decoder) (C, error)) func(d *codec.Decoder) (Adapter[C], error) {
	return func(d *codec.Decoder) (Adapter[C], error) {
		c, err := inner(d)
		if err != nil {
			return Adapter[C]{}, err
		}
		return Adapter[C]{Inner: c}, nil
	}
}

// ScrapePrevious scans the parent block body for transactions whose checker
// satisfies match and returns them with their hashes. Inherents place their
// primary output at index 0, so the caller can reference {Hash, 0}.
func ScrapePrevious[C codec.Encodable](parent *block.Block[C], match func(C) bool) []Previous[C] {
	var found []Previous[C]
	for _, t := range parent.Extrinsics {
		if match(t.Checker) {
			found = append(found, Previous[C]{Tx: t, Hash: t.Hash()})
		}
	}
	return found
}
