package verifier

import (
	"bytes"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Unspendable never verifies. Outputs guarded by it can only leave the state
// through eviction.
type Unspendable struct{}

func (Unspendable) Kind() Kind                         { return KindUnspendable }
func (Unspendable) EncodeTo(*codec.Encoder)            {}
func (Unspendable) Verify([]byte, uint32, []byte) bool { return false }

// UpForGrabs always verifies. Anyone may spend the output.
type UpForGrabs struct{}

func (UpForGrabs) Kind() Kind                         { return KindUpForGrabs }
func (UpForGrabs) EncodeTo(*codec.Encoder)            {}
func (UpForGrabs) Verify([]byte, uint32, []byte) bool { return true }

// SigCheck requires a Schnorr signature by Owner over the BLAKE3 digest of the
// simplified transaction. The redeemer is the 64-byte signature.
type SigCheck struct {
	Owner [crypto.PublicKeySize]byte
}

func (SigCheck) Kind() Kind { return KindSigCheck }

func (s SigCheck) EncodeTo(e *codec.Encoder) {
	e.Fixed(s.Owner[:])
}

func (s *SigCheck) DecodeFrom(d *codec.Decoder) error {
	d.Fixed(s.Owner[:])
	return d.Err()
}

func (s SigCheck) Verify(simplifiedTx []byte, _ uint32, redeemer []byte) bool {
	return crypto.VerifyMessage(simplifiedTx, redeemer, s.Owner[:])
}

// ThresholdMultiSignature passes when at least Threshold distinct signatories
// have signed the simplified transaction.
//
// The redeemer is a length-prefixed list of (index u8, signature) pairs where
// index points into Signatories.
type ThresholdMultiSignature struct {
	Threshold   uint8
	Signatories [][crypto.PublicKeySize]byte
}

// NewThresholdMultiSignature validates the threshold against the signatory set.
func NewThresholdMultiSignature(threshold uint8, signatories [][crypto.PublicKeySize]byte) (ThresholdMultiSignature, error) {
	if int(threshold) > len(signatories) {
		return ThresholdMultiSignature{}, fmt.Errorf("%w: %d > %d", ErrBadThreshold, threshold, len(signatories))
	}
	return ThresholdMultiSignature{Threshold: threshold, Signatories: signatories}, nil
}

func (ThresholdMultiSignature) Kind() Kind { return KindThresholdMultiSig }

func (m ThresholdMultiSignature) EncodeTo(e *codec.Encoder) {
	e.Uint8(m.Threshold)
	e.Len(len(m.Signatories))
	for _, s := range m.Signatories {
		e.Fixed(s[:])
	}
}

func (m *ThresholdMultiSignature) DecodeFrom(d *codec.Decoder) error {
	m.Threshold = d.Uint8()
	n := d.Len()
	if d.Err() != nil {
		return d.Err()
	}
	if n > d.Remaining()/crypto.PublicKeySize {
		return fmt.Errorf("%w: %d signatories", codec.ErrShortBuffer, n)
	}
	m.Signatories = nil
	if n > 0 {
		m.Signatories = make([][crypto.PublicKeySize]byte, n)
		for i := range m.Signatories {
			d.Fixed(m.Signatories[i][:])
		}
	}
	if d.Err() == nil && int(m.Threshold) > n {
		return fmt.Errorf("%w: %d > %d", ErrBadThreshold, m.Threshold, n)
	}
	return d.Err()
}

func (m ThresholdMultiSignature) Verify(simplifiedTx []byte, _ uint32, redeemer []byte) bool {
	sigs, err := DecodeMultiSigRedeemer(redeemer)
	if err != nil {
		return false
	}
	seen := make(map[uint8]bool, len(sigs))
	valid := 0
	for _, s := range sigs {
		if int(s.Index) >= len(m.Signatories) || seen[s.Index] {
			return false
		}
		seen[s.Index] = true
		if crypto.VerifyMessage(simplifiedTx, s.Signature, m.Signatories[s.Index][:]) {
			valid++
		}
	}
	return valid >= int(m.Threshold)
}

// IndexedSignature is one entry of a multi-signature redeemer.
type IndexedSignature struct {
	Index     uint8
	Signature []byte
}

// EncodeMultiSigRedeemer builds a redeemer for ThresholdMultiSignature.
func EncodeMultiSigRedeemer(sigs []IndexedSignature) []byte {
	e := codec.NewEncoder()
	e.Len(len(sigs))
	for _, s := range sigs {
		e.Uint8(s.Index)
		e.VarBytes(s.Signature)
	}
	return e.Bytes()
}

// DecodeMultiSigRedeemer parses a redeemer built by EncodeMultiSigRedeemer.
func DecodeMultiSigRedeemer(b []byte) ([]IndexedSignature, error) {
	d := codec.NewDecoder(b)
	n := d.Len()
	if d.Err() == nil && n > d.Remaining()/2 {
		return nil, fmt.Errorf("%w: %d signatures", codec.ErrShortBuffer, n)
	}
	sigs := make([]IndexedSignature, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		sigs = append(sigs, IndexedSignature{Index: d.Uint8(), Signature: d.VarBytes()})
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return sigs, nil
}

// TimeLock verifies once the chain reaches UnlockHeight. Any redeemer works.
type TimeLock struct {
	UnlockHeight uint32
}

func (TimeLock) Kind() Kind { return KindTimeLock }

func (l TimeLock) EncodeTo(e *codec.Encoder) {
	e.Uint32(l.UnlockHeight)
}

func (l *TimeLock) DecodeFrom(d *codec.Decoder) error {
	l.UnlockHeight = d.Uint32()
	return d.Err()
}

func (l TimeLock) Verify(_ []byte, blockHeight uint32, _ []byte) bool {
	return blockHeight >= l.UnlockHeight
}

// HashLock verifies when the redeemer is a BLAKE3 preimage of Hash.
type HashLock struct {
	Hash types.Hash
}

func (HashLock) Kind() Kind { return KindHashLock }

func (l HashLock) EncodeTo(e *codec.Encoder) {
	e.Fixed(l.Hash[:])
}

func (l *HashLock) DecodeFrom(d *codec.Decoder) error {
	d.Fixed(l.Hash[:])
	return d.Err()
}

func (l HashLock) Verify(_ []byte, _ uint32, redeemer []byte) bool {
	h := crypto.Hash(redeemer)
	return bytes.Equal(h[:], l.Hash[:])
}
