package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// amount is a minimal payload used throughout the tests.
type amount uint64

func (amount) TypeID() dynamic.TypeID { return dynamic.TypeID{'a', 'm', 'n', 't'} }

func (a amount) EncodeTo(e *codec.Encoder) { e.Uint64(uint64(a)) }

func (a *amount) DecodeFrom(d *codec.Decoder) error {
	*a = amount(d.Uint64())
	return d.Err()
}

// tagChecker is a trivial checker value encoded as one byte.
type tagChecker struct {
	Tag uint8
}

func (c tagChecker) EncodeTo(e *codec.Encoder) { e.Uint8(c.Tag) }

func testCodec() Codec[tagChecker] {
	return Codec[tagChecker]{
		Verifiers: verifier.NewRegistry(),
		Checker: func(d *codec.Decoder) (tagChecker, error) {
			return tagChecker{Tag: d.Uint8()}, d.Err()
		},
	}
}

func ref(b byte, i uint32) types.OutputRef {
	return types.OutputRef{TxHash: types.Hash{b}, Index: i}
}

func sampleTx(t *testing.T) Transaction[tagChecker] {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return Transaction[tagChecker]{
		Inputs:    []Input{{OutputRef: ref(1, 0), Redeemer: []byte("proof")}},
		Peeks:     []types.OutputRef{ref(2, 1)},
		Evictions: []types.OutputRef{ref(3, 2)},
		Outputs: []Output{
			NewOutput(amount(50), verifier.SigCheck{Owner: key.PublicKeyArray()}),
			NewOutput(amount(7), verifier.Unspendable{}),
		},
		Checker: tagChecker{Tag: 9},
	}
}

func TestTransaction_EncodeDecode(t *testing.T) {
	orig := sampleTx(t)
	got, err := testCodec().Decode(orig.Bytes())
	require.NoError(t, err)
	assert.Equal(t, orig, got)
	assert.Equal(t, orig.Hash(), got.Hash(), "decoded tx hash differs")
}

func TestTransaction_EncodeDecode_Empty(t *testing.T) {
	orig := Transaction[tagChecker]{}
	got, err := testCodec().Decode(orig.Bytes())
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestTransaction_Decode_TrailingBytes(t *testing.T) {
	b := append(sampleTx(t).Bytes(), 0x00)
	_, err := testCodec().Decode(b)
	assert.ErrorIs(t, err, codec.ErrTrailingBytes)
}

func TestTransaction_Decode_Truncated(t *testing.T) {
	b := sampleTx(t).Bytes()
	for _, n := range []int{0, 1, 10, len(b) / 2, len(b) - 1} {
		_, err := testCodec().Decode(b[:n])
		assert.Error(t, err, "Decode(%d bytes) should fail", n)
	}
}

func TestTransaction_Decode_DisallowedVerifier(t *testing.T) {
	c := testCodec()
	c.Verifiers = verifier.NewRegistry(verifier.KindSigCheck)
	_, err := c.Decode(sampleTx(t).Bytes())
	assert.ErrorIs(t, err, verifier.ErrKindNotAllowed)
}

func TestTransaction_Hash_IncludesRedeemer(t *testing.T) {
	a := sampleTx(t)
	b := a
	b.Inputs = []Input{{OutputRef: a.Inputs[0].OutputRef, Redeemer: []byte("other")}}

	assert.NotEqual(t, a.Hash(), b.Hash(), "hash should cover redeemers")
	assert.Equal(t, a.SigningBytes(), b.SigningBytes(), "signing bytes should not depend on redeemers")
}

func TestTransaction_SigningBytes_DoesNotMutate(t *testing.T) {
	tx := sampleTx(t)
	_ = tx.SigningBytes()
	assert.Equal(t, "proof", string(tx.Inputs[0].Redeemer), "SigningBytes() must not clear the original redeemers")
}

func TestTransaction_SigningBytes_CoversChecker(t *testing.T) {
	a := sampleTx(t)
	b := a
	b.Checker = tagChecker{Tag: 10}
	assert.NotEqual(t, a.SigningBytes(), b.SigningBytes())
}

func TestTransaction_OutputRef(t *testing.T) {
	tx := sampleTx(t)
	assert.Equal(t, types.OutputRef{TxHash: tx.Hash(), Index: 1}, tx.OutputRef(1))
}

func TestTransaction_Refs(t *testing.T) {
	tx := sampleTx(t)
	assert.Equal(t, []types.OutputRef{ref(1, 0), ref(2, 1), ref(3, 2)}, tx.Refs())
}

func TestMap(t *testing.T) {
	tx := sampleTx(t)
	mapped := Map(tx, func(c tagChecker) tagChecker { return tagChecker{Tag: c.Tag + 1} })
	assert.Equal(t, uint8(10), mapped.Checker.Tag)
	assert.Equal(t, tx.Outputs, mapped.Outputs)
	assert.Equal(t, tx.Inputs, mapped.Inputs)
}

func TestPayloads(t *testing.T) {
	tx := sampleTx(t)
	p := Payloads(tx.Outputs)
	require.Len(t, p, 2)
	assert.True(t, p[0].Equal(dynamic.New(amount(50))))
	assert.Nil(t, Payloads(nil))
}

func TestOutput_DecodeOutputBytes(t *testing.T) {
	out := NewOutput(amount(3), verifier.TimeLock{UnlockHeight: 12})
	got, err := testCodec().DecodeOutputBytes(codec.Encode(out))
	require.NoError(t, err)
	assert.Equal(t, out, got)

	v, err := dynamic.Extract[amount](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, amount(3), v)
}
