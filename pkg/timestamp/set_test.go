package timestamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

func configAt(height uint32) Config {
	return NewConfig(DefaultRules(), FixedHeight(height), verifier.NewRegistry())
}

func ts(time uint64, block uint32) dynamic.Data {
	return dynamic.New(New(time, block))
}

type notATimestamp struct{}

func (notATimestamp) TypeID() dynamic.TypeID  { return dynamic.TypeID{'n', 'o', 'p', 'e'} }
func (notATimestamp) EncodeTo(*codec.Encoder) {}

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, uint64(2000), r.MinimumTimeInterval)
	assert.Equal(t, uint64(60_000), r.MaxDrift)
	assert.Equal(t, uint64(86_400_000), r.MinTimeBeforeCleanup)
	assert.Equal(t, uint32(15_000), r.MinBlocksBeforeCleanup)
}

func TestTimestamp_Encoding(t *testing.T) {
	b := codec.Encode(New(0x0102, 7))
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0, 7, 0, 0, 0}, b)

	var got Timestamp
	require.NoError(t, codec.Decode(b, &got))
	assert.Equal(t, New(0x0102, 7), got)
	assert.Equal(t, "time", got.TypeID().String())
}

func TestSetTimestamp_Valid(t *testing.T) {
	s := SetTimestamp{Config: configAt(6)}
	p, err := s.CheckData(nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(3500, 6)})
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestSetTimestamp_ExactInterval(t *testing.T) {
	s := SetTimestamp{Config: configAt(6)}
	_, err := s.CheckData(nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(3000, 6)})
	require.NoError(t, err)
}

func TestSetTimestamp_Errors(t *testing.T) {
	other := dynamic.New(notATimestamp{})
	tests := []struct {
		name      string
		height    uint32
		inputs    []dynamic.Data
		peeks     []dynamic.Data
		evictions []dynamic.Data
		outputs   []dynamic.Data
		want      error
	}{
		{"too old", 6, nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(2500, 6)}, ErrTimestampTooOld},
		{"inputs", 6, []dynamic.Data{ts(1, 1)}, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(3500, 6)}, ErrInputsWhileSettingTimestamp},
		{"evictions", 6, nil, []dynamic.Data{ts(1000, 5)}, []dynamic.Data{ts(1, 1)}, []dynamic.Data{ts(3500, 6)}, ErrInputsWhileSettingTimestamp},
		{"no output", 6, nil, []dynamic.Data{ts(1000, 5)}, nil, nil, ErrMissingNewTimestamp},
		{"output badly typed", 6, nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{other}, ErrBadlyTyped},
		{"two outputs", 6, nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(3500, 6), ts(3500, 6)}, ErrTooManyOutputsWhileSettingTimestamp},
		{"wrong new height", 7, nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(3500, 6)}, ErrNewTimestampWrongHeight},
		{"no peek", 6, nil, nil, nil, []dynamic.Data{ts(3500, 6)}, ErrMissingPreviousTimestamp},
		{"genesis time at height 0", 0, nil, nil, nil, []dynamic.Data{ts(5, 0)}, ErrMissingPreviousTimestamp},
		{"genesis shape above height 0", 3, nil, nil, nil, []dynamic.Data{ts(0, 0)}, ErrNewTimestampWrongHeight},
		{"peek badly typed", 6, nil, []dynamic.Data{other}, nil, []dynamic.Data{ts(3500, 6)}, ErrBadlyTyped},
		{"gap in heights", 6, nil, []dynamic.Data{ts(1000, 4)}, nil, []dynamic.Data{ts(9000, 6)}, ErrPreviousTimestampWrongHeight},
		{"same height", 5, nil, []dynamic.Data{ts(1000, 5)}, nil, []dynamic.Data{ts(9000, 5)}, ErrPreviousTimestampWrongHeight},
		{"time went backwards", 6, nil, []dynamic.Data{ts(10_000, 5)}, nil, []dynamic.Data{ts(1000, 6)}, ErrTimestampTooOld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SetTimestamp{Config: configAt(tt.height)}
			_, err := s.CheckData(tt.inputs, tt.peeks, tt.evictions, tt.outputs)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetTimestamp_GenesisWaiver(t *testing.T) {
	s := SetTimestamp{Config: configAt(1)}
	_, err := s.CheckData(nil, []dynamic.Data{ts(0, 0)}, nil, []dynamic.Data{ts(1, 1)})
	require.NoError(t, err)
}

func TestSetTimestamp_EncodesToNothing(t *testing.T) {
	assert.Empty(t, codec.Encode(SetTimestamp{Config: configAt(1)}))
	got, err := DecodeSetTimestamp(configAt(3))(codec.NewDecoder(nil))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Config.BlockHeight())
}

func authoringData(t *testing.T, now uint64) *inherent.Data {
	t.Helper()
	d := inherent.NewData()
	require.NoError(t, d.PutUint64(inherent.TimestampIdentifier, now))
	return d
}

func TestSetTimestamp_CreateInherent(t *testing.T) {
	s := SetTimestamp{Config: configAt(8)}
	prevHash := types.Hash{0xab}
	created := s.CreateInherent(authoringData(t, 123_456), inherent.Previous[SetTimestamp]{Hash: prevHash})

	assert.Empty(t, created.Inputs)
	assert.Empty(t, created.Evictions)
	assert.Equal(t, []types.OutputRef{{TxHash: prevHash, Index: 0}}, created.Peeks)
	require.Len(t, created.Outputs, 1)
	assert.Equal(t, verifier.KindUnspendable, created.Outputs[0].Verifier.Kind())

	got, err := dynamic.Extract[Timestamp](created.Outputs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, New(123_456, 8), got)
}

func TestSetTimestamp_CreateInherent_MissingData(t *testing.T) {
	s := SetTimestamp{Config: configAt(8)}
	assert.Panics(t, func() {
		s.CreateInherent(inherent.NewData(), inherent.Previous[SetTimestamp]{})
	})
}

func TestSetTimestamp_CreateInherent_NoUnspendable(t *testing.T) {
	cfg := NewConfig(DefaultRules(), FixedHeight(1), verifier.NewRegistry(verifier.KindSigCheck))
	assert.Panics(t, func() {
		SetTimestamp{Config: cfg}.CreateInherent(authoringData(t, 1), inherent.Previous[SetTimestamp]{})
	})
}

func TestSetTimestamp_CheckInherent(t *testing.T) {
	s := SetTimestamp{Config: configAt(2)}
	block := func(time uint64) tx.Transaction[SetTimestamp] {
		return tx.Transaction[SetTimestamp]{
			Outputs: []tx.Output{tx.NewOutput(New(time, 2), verifier.Unspendable{})},
			Checker: s,
		}
	}

	tests := []struct {
		name      string
		blockTime uint64
		local     uint64
		fatal     bool
	}{
		{"in sync", 100_000, 100_000, false},
		{"behind local", 50_000, 100_000, false},
		{"ahead within drift", 160_000, 100_000, false},
		{"ahead beyond drift", 160_001, 100_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := inherent.NewCheckResults()
			s.CheckInherent(authoringData(t, tt.local), block(tt.blockTime), r)
			assert.Equal(t, tt.fatal, r.FatalErrorReported())
			if tt.fatal {
				require.ErrorIs(t, r.Error(inherent.TimestampIdentifier), ErrTooFarInFuture)
			} else {
				assert.True(t, r.Ok())
			}
		})
	}
}

func TestSetTimestamp_CheckInherent_Malformed(t *testing.T) {
	s := SetTimestamp{Config: configAt(2)}
	for name, in := range map[string]tx.Transaction[SetTimestamp]{
		"no outputs": {Checker: s},
		"wrong type": {Outputs: []tx.Output{tx.NewOutput(notATimestamp{}, verifier.Unspendable{})}, Checker: s},
	} {
		t.Run(name, func(t *testing.T) {
			r := inherent.NewCheckResults()
			assert.NotPanics(t, func() { s.CheckInherent(authoringData(t, 1), in, r) })
			assert.True(t, r.FatalErrorReported())
			require.ErrorIs(t, r.Error(inherent.TimestampIdentifier), ErrMalformedInherent)
		})
	}
}

func TestSetTimestamp_CheckInherent_MissingData(t *testing.T) {
	s := SetTimestamp{Config: configAt(2)}
	assert.Panics(t, func() {
		s.CheckInherent(inherent.NewData(), tx.Transaction[SetTimestamp]{Checker: s}, inherent.NewCheckResults())
	})
}

func TestGenesis_SelfConsistent(t *testing.T) {
	genesis := SetTimestamp{Config: configAt(0)}.GenesisTransactions()
	require.Len(t, genesis, 1)
	g := genesis[0]
	assert.Empty(t, g.Inputs)
	assert.Empty(t, g.Peeks)
	require.Len(t, g.Outputs, 1)
	assert.Equal(t, verifier.KindUnspendable, g.Outputs[0].Verifier.Kind())

	gts, err := dynamic.Extract[Timestamp](g.Outputs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, New(0, 0), gts)

	// The piece's own check accepts its genesis transaction at height 0.
	_, err = constraint.Promote(g.Checker).Check(nil, nil, nil, g.Outputs)
	require.NoError(t, err)
	_, err = inherent.Adapt(g.Checker).Check(nil, nil, nil, g.Outputs)
	require.NoError(t, err)

	// Block 1 authored on top of genesis must satisfy the checker.
	s1 := SetTimestamp{Config: configAt(1)}
	first := s1.CreateInherent(authoringData(t, 1_700_000_000_000), inherent.Previous[SetTimestamp]{Tx: g, Hash: g.Hash()})
	assert.Equal(t, g.OutputRef(0), first.Peeks[0])

	_, err = first.Checker.CheckData(nil, tx.Payloads(g.Outputs), nil, tx.Payloads(first.Outputs))
	require.NoError(t, err)

	// And block 2 on top of block 1, MinimumTimeInterval later.
	s2 := SetTimestamp{Config: configAt(2)}
	second := s2.CreateInherent(authoringData(t, 1_700_000_002_000), inherent.Previous[SetTimestamp]{Tx: first, Hash: first.Hash()})
	_, err = second.Checker.CheckData(nil, tx.Payloads(first.Outputs), nil, tx.Payloads(second.Outputs))
	require.NoError(t, err)
}

func TestSetTimestamp_ThroughAdapter(t *testing.T) {
	a := inherent.Adapt(SetTimestamp{Config: configAt(1)})
	genesis := a.GenesisTransactions()
	require.Len(t, genesis, 1)

	created := a.CreateInherents(authoringData(t, 5000), []inherent.Previous[inherent.Adapter[SetTimestamp]]{
		{Tx: genesis[0], Hash: genesis[0].Hash()},
	})
	require.Len(t, created, 1)

	_, err := a.Check(nil, genesis[0].Outputs, nil, created[0].Outputs)
	require.NoError(t, err)

	r := inherent.NewCheckResults()
	a.CheckInherents(authoringData(t, 5000), created, r)
	assert.True(t, r.Ok())
}
