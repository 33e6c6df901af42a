package inherent

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

var beaconID = MustIdentifier("beacon00")

var errBeaconAhead = errors.New("beacon ahead of importer")

// beaconValue is the payload written by the beacon inherent.
type beaconValue uint64

func (beaconValue) TypeID() dynamic.TypeID { return dynamic.TypeID{'b', 'c', 'n', '0'} }

func (v beaconValue) EncodeTo(e *codec.Encoder) { e.Uint64(uint64(v)) }

func (v *beaconValue) DecodeFrom(d *codec.Decoder) error {
	*v = beaconValue(d.Uint64())
	return d.Err()
}

// beacon is a minimal inherent piece: every block publishes the author's
// beacon value, peeking the previous one.
type beacon struct{}

func (beacon) EncodeTo(*codec.Encoder) {}

func (beacon) CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (constraint.Priority, error) {
	if len(outputs) != 1 {
		return 0, errors.New("beacon needs one output")
	}
	return 0, nil
}

func (beacon) Identifier() Identifier { return beaconID }

func (beacon) CreateInherent(authoring *Data, previous Previous[beacon]) tx.Transaction[beacon] {
	v, err := authoring.Uint64(beaconID)
	if err != nil {
		panic(err)
	}
	return tx.Transaction[beacon]{
		Peeks:   []types.OutputRef{{TxHash: previous.Hash, Index: 0}},
		Outputs: []tx.Output{tx.NewOutput(beaconValue(v), verifier.Unspendable{})},
		Checker: beacon{},
	}
}

func (beacon) CheckInherent(importing *Data, inherent tx.Transaction[beacon], results *CheckResults) {
	local, err := importing.Uint64(beaconID)
	if err != nil {
		_ = results.PutError(beaconID, Fatal(err))
		return
	}
	v, err := dynamic.Extract[beaconValue](inherent.Outputs[0].Payload)
	if err != nil || uint64(v) > local {
		_ = results.PutError(beaconID, Fatal(errBeaconAhead))
	}
}

func (beacon) GenesisTransactions() []tx.Transaction[beacon] {
	return []tx.Transaction[beacon]{{
		Outputs: []tx.Output{tx.NewOutput(beaconValue(0), verifier.Unspendable{})},
		Checker: beacon{},
	}}
}

func beaconData(t *testing.T, v uint64) *Data {
	t.Helper()
	d := NewData()
	require.NoError(t, d.PutUint64(beaconID, v))
	return d
}

func TestAdapter_IsInherent(t *testing.T) {
	a := Adapt(beacon{})
	assert.True(t, a.IsInherent())
	assert.Equal(t, beaconID, a.Identifier())
}

func TestAdapter_EncodesLikeInner(t *testing.T) {
	assert.Equal(t, codec.Encode(beacon{}), codec.Encode(Adapt(beacon{})))
}

func TestAdapter_Check_Delegates(t *testing.T) {
	a := Adapt(beacon{})
	out := []tx.Output{tx.NewOutput(beaconValue(1), verifier.Unspendable{})}

	_, err := a.Check(nil, nil, nil, out)
	require.NoError(t, err)

	_, err = a.Check(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestAdapter_CreateInherents(t *testing.T) {
	a := Adapt(beacon{})
	genesis := a.GenesisTransactions()
	require.Len(t, genesis, 1)

	prev := []Previous[Adapter[beacon]]{{Tx: genesis[0], Hash: genesis[0].Hash()}}
	created := a.CreateInherents(beaconData(t, 77), prev)
	require.Len(t, created, 1)

	got := created[0]
	assert.Equal(t, []types.OutputRef{{TxHash: genesis[0].Hash(), Index: 0}}, got.Peeks)
	v, err := dynamic.Extract[beaconValue](got.Outputs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, beaconValue(77), v)
}

func TestAdapter_CreateInherents_PanicsOnZero(t *testing.T) {
	a := Adapt(beacon{})
	assert.Panics(t, func() {
		a.CreateInherents(beaconData(t, 1), nil)
	})
}

func TestAdapter_CreateInherents_PanicsOnMultiple(t *testing.T) {
	a := Adapt(beacon{})
	g := a.GenesisTransactions()[0]
	prev := []Previous[Adapter[beacon]]{{Tx: g, Hash: g.Hash()}, {Tx: g, Hash: g.Hash()}}
	assert.Panics(t, func() {
		a.CreateInherents(beaconData(t, 1), prev)
	})
}

func TestAdapter_CheckInherents_Zero(t *testing.T) {
	r := NewCheckResults()
	Adapt(beacon{}).CheckInherents(beaconData(t, 5), nil, r)

	require.True(t, r.FatalErrorReported())
	err := r.Error(beaconID)
	require.ErrorIs(t, err, ErrNoInherent)
	assert.Contains(t, err.Error(), "found zero")
}

func TestAdapter_CheckInherents_Multiple(t *testing.T) {
	a := Adapt(beacon{})
	g := a.GenesisTransactions()[0]
	r := NewCheckResults()
	a.CheckInherents(beaconData(t, 5), []tx.Transaction[Adapter[beacon]]{g, g}, r)

	require.True(t, r.FatalErrorReported())
	err := r.Error(beaconID)
	require.ErrorIs(t, err, ErrMultipleInherents)
	assert.Contains(t, err.Error(), "found multiple")
}

func TestAdapter_CheckInherents_AfterFatalDoesNotPanic(t *testing.T) {
	r := NewCheckResults()
	require.NoError(t, r.PutError(ParentBlockIdentifier, Fatal(errors.New("earlier"))))
	assert.NotPanics(t, func() {
		Adapt(beacon{}).CheckInherents(beaconData(t, 5), nil, r)
	})
	assert.Equal(t, []Identifier{ParentBlockIdentifier}, r.Identifiers())
}

func TestAdapter_CheckInherents_DelegatesSingle(t *testing.T) {
	a := Adapt(beacon{})
	g := a.GenesisTransactions()[0]
	created := a.CreateInherents(beaconData(t, 10), []Previous[Adapter[beacon]]{{Tx: g, Hash: g.Hash()}})

	ok := NewCheckResults()
	a.CheckInherents(beaconData(t, 10), created, ok)
	assert.True(t, ok.Ok())

	behind := NewCheckResults()
	a.CheckInherents(beaconData(t, 9), created, behind)
	require.ErrorIs(t, behind.Error(beaconID), errBeaconAhead)
}

func TestWrapUnwrap(t *testing.T) {
	g := beacon{}.GenesisTransactions()[0]
	wrapped := Wrap(g)
	assert.Equal(t, g.Hash(), wrapped.Hash(), "wrapping must not change the encoding")
	assert.Equal(t, g, Unwrap(wrapped))
}

func TestDecodeAdapter(t *testing.T) {
	dec := DecodeAdapter(func(*codec.Decoder) (beacon, error) { return beacon{}, nil })
	got, err := dec(codec.NewDecoder(nil))
	require.NoError(t, err)
	assert.Equal(t, Adapt(beacon{}), got)
}

func TestScrapePrevious(t *testing.T) {
	type checker = constraint.TestChecker
	inherentTx := tx.Transaction[checker]{Checker: checker{Checks: true}}
	normalTx := tx.Transaction[checker]{
		Outputs: []tx.Output{tx.NewOutput(beaconValue(3), verifier.UpForGrabs{})},
		Checker: checker{Checks: false},
	}
	parent := block.NewBlock(&block.Header{Version: block.CurrentVersion}, []tx.Transaction[checker]{inherentTx, normalTx})

	found := ScrapePrevious(parent, func(c checker) bool { return c.Checks })
	require.Len(t, found, 1)
	assert.Equal(t, inherentTx.Hash(), found[0].Hash)

	none := ScrapePrevious(parent, func(checker) bool { return false })
	assert.Empty(t, none)
}
