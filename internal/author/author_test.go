package author

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/timestamp"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

var start = time.UnixMilli(1_700_000_000_000)

type note uint64

func (note) TypeID() dynamic.TypeID      { return dynamic.TypeID{'n', 'o', 't', 'e'} }
func (n note) EncodeTo(e *codec.Encoder) { e.Uint64(uint64(n)) }

// fixedSelector returns the same candidates every time.
type fixedSelector struct {
	txs   []runtime.Transaction
	limit int
}

func (s *fixedSelector) SelectForBlock(limit int) []runtime.Transaction {
	s.limit = limit
	if len(s.txs) > limit {
		return s.txs[:limit]
	}
	return s.txs
}

func testChain(t *testing.T) (*chain.Chain, *runtime.Runtime) {
	t.Helper()
	db := storage.NewMemory()
	rt := runtime.New(storage.NewPrefixDB(db, []byte("s/")), timestamp.DefaultRules(), nil)
	ch, err := chain.New(storage.NewPrefixDB(db, []byte("c/")), rt)
	require.NoError(t, err)
	require.NoError(t, ch.InitGenesis())
	ch.SetClock(func() time.Time { return start.Add(time.Minute) })
	return ch, rt
}

func minted(n uint64, ok bool) runtime.Transaction {
	return tx.NewBuilder[runtime.Checker](runtime.NewTestChecker(ok)).
		AddOutput(note(n), verifier.UpForGrabs{}).
		Build()
}

func TestAuthor_ProduceBlock_OnGenesis(t *testing.T) {
	ch, rt := testChain(t)
	a := New(ch, rt, nil)

	blk, err := a.ProduceBlock(context.Background(), start)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), blk.Height())
	assert.Equal(t, ch.GenesisHash(), blk.Header.ParentHash)
	assert.Equal(t, blk.ComputeExtrinsicsRoot(), blk.Header.ExtrinsicsRoot)
	require.Len(t, blk.Extrinsics, 1)
	require.True(t, blk.Extrinsics[0].Checker.IsInherent())

	ts, err := dynamic.Extract[timestamp.Timestamp](blk.Extrinsics[0].Outputs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, timestamp.New(uint64(start.UnixMilli()), 1), ts)

	require.NoError(t, ch.ProcessBlock(context.Background(), blk))
	assert.Equal(t, uint32(1), ch.Height())
}

func TestAuthor_ProduceBlock_DoesNotTouchState(t *testing.T) {
	ch, rt := testChain(t)
	before, err := utxo.Commitment(rt.Exec.Store())
	require.NoError(t, err)

	sel := &fixedSelector{txs: []runtime.Transaction{minted(1, true)}}
	_, err = New(ch, rt, sel).ProduceBlock(context.Background(), start)
	require.NoError(t, err)

	after, err := utxo.Commitment(rt.Exec.Store())
	require.NoError(t, err)
	assert.Equal(t, before, after, "producing a block must not change the committed state")
	assert.Equal(t, uint32(0), rt.Exec.BlockHeight())
}

func TestAuthor_ProduceBlock_SkipsInvalid(t *testing.T) {
	ch, rt := testChain(t)
	good := minted(1, true)
	bad := minted(2, false)
	stray := runtime.Transaction{Checker: rt.SetTimestamp()}
	sel := &fixedSelector{txs: []runtime.Transaction{bad, stray, good}}

	blk, err := New(ch, rt, sel).ProduceBlock(context.Background(), start)
	require.NoError(t, err)
	require.Len(t, blk.Extrinsics, 2)
	assert.Equal(t, good.Hash(), blk.Extrinsics[1].Hash(), "valid transaction should follow the inherent")

	require.NoError(t, ch.ProcessBlock(context.Background(), blk))
	ok, err := rt.Exec.Store().Has(good.OutputRef(0))
	require.NoError(t, err)
	assert.True(t, ok, "output of included transaction missing")
}

func TestAuthor_ProduceBlock_DependentTransactions(t *testing.T) {
	ch, rt := testChain(t)
	first := minted(7, true)
	second := tx.NewBuilder[runtime.Checker](runtime.NewTestChecker(true)).
		AddInput(first.OutputRef(0)).
		AddOutput(note(8), verifier.UpForGrabs{}).
		Build()
	// A transaction spending the same output again must be dropped.
	third := tx.NewBuilder[runtime.Checker](runtime.NewTestChecker(true)).
		AddInput(first.OutputRef(0)).
		AddOutput(note(9), verifier.UpForGrabs{}).
		Build()

	sel := &fixedSelector{txs: []runtime.Transaction{first, second, third}}
	blk, err := New(ch, rt, sel).ProduceBlock(context.Background(), start)
	require.NoError(t, err)
	require.Len(t, blk.Extrinsics, 3)
	require.NoError(t, ch.ProcessBlock(context.Background(), blk))
}

func TestAuthor_ProduceBlock_MaxTxs(t *testing.T) {
	ch, rt := testChain(t)
	sel := &fixedSelector{txs: []runtime.Transaction{minted(1, true), minted(2, true), minted(3, true)}}
	a := New(ch, rt, sel)
	a.SetMaxTxs(2)

	blk, err := a.ProduceBlock(context.Background(), start)
	require.NoError(t, err)
	assert.Len(t, blk.Extrinsics, 2)
	assert.Equal(t, 2, sel.limit)
}

func TestAuthor_ProduceBlock_TooSoon(t *testing.T) {
	ch, rt := testChain(t)
	a := New(ch, rt, nil)

	blk, err := a.ProduceBlock(context.Background(), start)
	require.NoError(t, err)
	require.NoError(t, ch.ProcessBlock(context.Background(), blk))

	_, err = a.ProduceBlock(context.Background(), start.Add(time.Second))
	require.ErrorIs(t, err, timestamp.ErrTimestampTooOld)
	assert.Equal(t, uint32(1), rt.Exec.BlockHeight(), "height must be restored after failed authoring")

	blk, err = a.ProduceBlock(context.Background(), start.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), blk.Height())
}

func TestAuthor_ProduceBlock_Uninitialized(t *testing.T) {
	db := storage.NewMemory()
	rt := runtime.New(db, timestamp.DefaultRules(), nil)
	ch, err := chain.New(storage.NewPrefixDB(db, []byte("c/")), rt)
	require.NoError(t, err)

	_, err = New(ch, rt, nil).ProduceBlock(context.Background(), start)
	require.ErrorIs(t, err, chain.ErrNotInitialized)
}
