package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *PrivateKey {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key Signer, msg string) ([]byte, []byte) {
	t.Helper()
	hash := Hash([]byte(msg))
	sig, err := key.Sign(hash[:])
	require.NoError(t, err)
	return hash[:], sig
}

func TestGenerateKey(t *testing.T) {
	key := newKey(t)
	assert.Len(t, key.PublicKey(), PublicKeySize)
	assert.Len(t, key.Serialize(), 32)
	assert.NotEqual(t, key.Serialize(), newKey(t).Serialize(), "two generated keys should differ")
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original := newKey(t)
	restored, err := PrivateKeyFromBytes(original.Serialize())
	require.NoError(t, err)
	assert.Equal(t, original.PublicKey(), restored.PublicKey())

	// A restored key signs for the original public key.
	hash, sig := sign(t, restored, "roundtrip test")
	assert.True(t, VerifySignature(hash, sig, original.PublicKey()))
}

func TestPrivateKeyFromBytes_InvalidLength(t *testing.T) {
	for _, n := range []int{0, 16, 64} {
		_, err := PrivateKeyFromBytes(make([]byte, n))
		assert.Error(t, err, "%d-byte key", n)
	}
}

func TestSign_Verify(t *testing.T) {
	key := newKey(t)
	hash, sig := sign(t, key, "test message")
	assert.Len(t, sig, SignatureSize)
	assert.True(t, VerifySignature(hash, sig, key.PublicKey()))
}

func TestSign_Deterministic(t *testing.T) {
	key := newKey(t)
	_, sig1 := sign(t, key, "deterministic test")
	_, sig2 := sign(t, key, "deterministic test")
	assert.Equal(t, sig1, sig2, "same key and hash should give the same signature")
}

func TestSign_InvalidHashLength(t *testing.T) {
	_, err := newKey(t).Sign([]byte("too short"))
	assert.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	key := newKey(t)
	hash, sig := sign(t, key, "message")
	other := Hash([]byte("different message"))
	corrupted := append([]byte(nil), sig...)
	corrupted[0] ^= 0x01

	tests := []struct {
		name      string
		hash      []byte
		signature []byte
		publicKey []byte
	}{
		{"wrong hash", other[:], sig, key.PublicKey()},
		{"wrong key", hash, sig, newKey(t).PublicKey()},
		{"corrupted signature", hash, corrupted, key.PublicKey()},
		{"nil hash", nil, make([]byte, 64), make([]byte, 33)},
		{"empty signature", make([]byte, 32), nil, make([]byte, 33)},
		{"empty public key", make([]byte, 32), make([]byte, 64), nil},
		{"short signature", make([]byte, 32), make([]byte, 10), make([]byte, 33)},
		{"garbage public key", make([]byte, 32), make([]byte, 64), []byte("bad")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(tt.hash, tt.signature, tt.publicKey))
		})
	}
}

func TestPrivateKey_Zero(t *testing.T) {
	key := newKey(t)
	sign(t, key, "test")

	key.Zero()
	assert.Equal(t, make([]byte, 32), key.Serialize(), "Serialize() should return zeros after Zero()")
}

func TestSignMessage_VerifyMessage(t *testing.T) {
	key := newKey(t)
	msg := []byte("simplified transaction bytes")
	sig, err := key.SignMessage(msg)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureSize)

	assert.True(t, VerifyMessage(msg, sig, key.PublicKey()))
	assert.False(t, VerifyMessage([]byte("other message"), sig, key.PublicKey()))

	digest := Hash(msg)
	assert.True(t, VerifySignature(digest[:], sig, key.PublicKey()), "SignMessage should sign the BLAKE3 digest")
}

func TestPrivateKey_PublicKeyArray(t *testing.T) {
	key := newKey(t)
	arr := key.PublicKeyArray()
	assert.Equal(t, key.PublicKey(), arr[:])
}

func TestValidPublicKey(t *testing.T) {
	key := newKey(t)
	assert.True(t, ValidPublicKey(key.PublicKey()))
	assert.False(t, ValidPublicKey(make([]byte, PublicKeySize)), "all-zero key")
	assert.False(t, ValidPublicKey(key.PublicKey()[:32]), "short key")
}

func TestPrivateKey_SignerInterface(t *testing.T) {
	var s Signer = newKey(t)
	hash, sig := sign(t, s, "signer interface test")
	assert.True(t, VerifySignature(hash, sig, s.PublicKey()))
}
