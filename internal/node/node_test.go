package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/author"
	"github.com/Klingon-tech/klingnet-ledger/internal/mempool"
	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

var start = time.UnixMilli(1_700_000_000_000)

type note uint64

func (note) TypeID() dynamic.TypeID      { return dynamic.TypeID{'n', 'o', 't', 'e'} }
func (n note) EncodeTo(e *codec.Encoder) { e.Uint64(uint64(n)) }

type selector []runtime.Transaction

func (s selector) SelectForBlock(int) []runtime.Transaction { return s }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DB = config.DBMemory
	cfg.Author.CleanupInterval = 0
	cfg.Log.Level = "error"
	return cfg
}

func newTestNode(t *testing.T, cfg *config.Config) *Node {
	t.Helper()
	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func minted(v uint64) runtime.Transaction {
	return tx.NewBuilder[runtime.Checker](runtime.NewTestChecker(true)).
		AddOutput(note(v), verifier.UpForGrabs{}).
		Build()
}

func spend(from runtime.Transaction, v uint64) runtime.Transaction {
	return tx.NewBuilder[runtime.Checker](runtime.NewTestChecker(true)).
		AddInput(from.OutputRef(0)).
		AddOutput(note(v), verifier.UpForGrabs{}).
		Build()
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.ledgerd/rules.json", filepath.Join(home, ".ledgerd/rules.json")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandHome(tt.input), "expandHome(%q)", tt.input)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB = "sqlite"
	_, err := New(cfg)
	assert.Error(t, err, "unknown backend must be rejected")
}

func TestNode_Genesis(t *testing.T) {
	n := newTestNode(t, testConfig(t))
	assert.Equal(t, uint32(0), n.Height())
	assert.Equal(t, n.Runtime().GenesisBlock().Hash(), n.Chain().GenesisHash(), "chain genesis does not match runtime genesis")
}

func TestNode_AuthorBlock(t *testing.T) {
	n := newTestNode(t, testConfig(t))

	mint := minted(1)
	_, err := n.SubmitTransaction(mint)
	require.NoError(t, err)
	require.Equal(t, 1, n.Pool().Count())

	blk, err := n.AuthorBlock(context.Background(), start)
	require.NoError(t, err)
	require.Equal(t, uint32(1), blk.Height())
	require.Equal(t, uint32(1), n.Height())
	require.Len(t, blk.Extrinsics, 2)
	assert.Equal(t, mint.Hash(), blk.Extrinsics[1].Hash(), "pooled transaction not included after the inherent")
	assert.Zero(t, n.Pool().Count(), "confirmed transaction still pooled")

	// The output is now spendable through the pool.
	_, err = n.SubmitTransaction(spend(mint, 2))
	require.NoError(t, err)
}

func TestNode_SubmitEncoded(t *testing.T) {
	n := newTestNode(t, testConfig(t))

	_, err := n.SubmitEncoded(minted(5).Bytes())
	require.NoError(t, err)
	_, err = n.SubmitEncoded([]byte{0xff, 0x00})
	assert.Error(t, err, "garbage must fail to decode")
}

func TestNode_SubmitInherent(t *testing.T) {
	n := newTestNode(t, testConfig(t))
	stray := runtime.Transaction{Checker: n.Runtime().SetTimestamp()}
	_, err := n.SubmitTransaction(stray)
	assert.ErrorIs(t, err, mempool.ErrInherent)
}

func TestNode_SubmitMissingVerifier(t *testing.T) {
	n := newTestNode(t, testConfig(t))
	malformed := runtime.Transaction{
		Outputs: []tx.Output{{Payload: dynamic.New(note(1))}},
		Checker: runtime.NewTestChecker(true),
	}
	_, err := n.SubmitTransaction(malformed)
	assert.ErrorIs(t, err, tx.ErrMissingVerifier)
	assert.Zero(t, n.Pool().Count())
}

func TestNode_ImportBlock_PrunesConflicts(t *testing.T) {
	n := newTestNode(t, testConfig(t))
	mint := minted(1)
	_, err := n.SubmitTransaction(mint)
	require.NoError(t, err)
	_, err = n.AuthorBlock(context.Background(), start)
	require.NoError(t, err)

	pending := spend(mint, 2)
	_, err = n.SubmitTransaction(pending)
	require.NoError(t, err)
	_, err = n.SubmitTransaction(spend(mint, 3))
	require.ErrorIs(t, err, mempool.ErrConflict)

	// Another author spends the same output first.
	other := author.New(n.Chain(), n.Runtime(), selector{spend(mint, 4)})
	blk, err := other.ProduceBlock(context.Background(), start.Add(3*time.Second))
	require.NoError(t, err)
	require.NoError(t, n.ImportBlock(context.Background(), blk))
	assert.False(t, n.Pool().Has(pending.Hash()), "conflicting transaction should be pruned after import")
}

func TestNode_SweepTimestamps(t *testing.T) {
	rules := config.DefaultRules()
	rules.Timestamp.MinTimeBeforeCleanup = 10_000
	rules.Timestamp.MinBlocksBeforeCleanup = 1
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, rules.Save(path))

	cfg := testConfig(t)
	cfg.RulesFile = path
	n := newTestNode(t, cfg)

	submitted, err := n.SweepTimestamps()
	require.NoError(t, err)
	require.False(t, submitted, "nothing should be evictable at genesis")

	for i, at := range []time.Time{start, start.Add(20 * time.Second)} {
		_, err := n.AuthorBlock(context.Background(), at)
		require.NoError(t, err, "AuthorBlock(%d)", i)
	}

	submitted, err = n.SweepTimestamps()
	require.NoError(t, err)
	require.True(t, submitted)
	require.Equal(t, 1, n.Pool().Count(), "expected one pending clean-up")

	// A second sweep before inclusion evicts the same timestamps.
	_, err = n.SweepTimestamps()
	require.ErrorIs(t, err, mempool.ErrAlreadyExists)

	genesisTs := n.Runtime().GenesisBlock().Extrinsics[0].OutputRef(0)
	blk, err := n.AuthorBlock(context.Background(), start.Add(40*time.Second))
	require.NoError(t, err)
	require.Len(t, blk.Extrinsics, 2)
	ok, err := n.Runtime().Exec.Store().Has(genesisTs)
	require.NoError(t, err)
	assert.False(t, ok, "genesis timestamp should be evicted")
}

func TestNode_StartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Author.Enabled = true
	cfg.Author.CleanupInterval = time.Minute
	n, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestNode_Persistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB = config.DBBadger

	n, err := New(cfg)
	require.NoError(t, err)
	blk, err := n.AuthorBlock(context.Background(), start)
	n.Stop()
	require.NoError(t, err)

	reopened := newTestNode(t, cfg)
	require.Equal(t, uint32(1), reopened.Height(), "height after reopen")
	assert.Equal(t, blk.Hash(), reopened.Chain().TipHash(), "tip not recovered")
	_, err = reopened.AuthorBlock(context.Background(), start.Add(3*time.Second))
	require.NoError(t, err)
}
