// Package verifier defines the ownership predicates attached to outputs.
//
// A verifier decides whether the redeemer supplied by a spending input proves
// the right to consume the output. Verification is pure: it sees only the
// simplified transaction, the block height and the redeemer.
package verifier

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
)

// Kind tags the verifier variant on the wire.
type Kind uint8

// Built-in verifier kinds.
const (
	KindUnspendable Kind = iota
	KindUpForGrabs
	KindSigCheck
	KindThresholdMultiSig
	KindTimeLock
	KindHashLock
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnspendable:
		return "unspendable"
	case KindUpForGrabs:
		return "up_for_grabs"
	case KindSigCheck:
		return "sig_check"
	case KindThresholdMultiSig:
		return "threshold_multisig"
	case KindTimeLock:
		return "time_lock"
	case KindHashLock:
		return "hash_lock"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Verifier errors.
var (
	ErrUnknownKind             = errors.New("unknown verifier kind")
	ErrKindNotAllowed          = errors.New("verifier kind not allowed")
	ErrUnspendableNotSupported = errors.New("runtime does not support unspendable outputs")
	ErrBadThreshold            = errors.New("threshold exceeds signatory count")
)

// Verifier is the ownership predicate of an output.
type Verifier interface {
	codec.Encodable
	// Kind returns the wire tag of the variant.
	Kind() Kind
	// Verify reports whether redeemer unlocks the output when spent by the
	// transaction whose redeemer-free encoding is simplifiedTx.
	Verify(simplifiedTx []byte, blockHeight uint32, redeemer []byte) bool
}

// Encode writes kind(u8) | body.
func Encode(e *codec.Encoder, v Verifier) {
	e.Uint8(uint8(v.Kind()))
	v.EncodeTo(e)
}

// Equal reports whether two verifiers have the same encoding.
func Equal(a, b Verifier) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ea := codec.NewEncoder()
	Encode(ea, a)
	eb := codec.NewEncoder()
	Encode(eb, b)
	return string(ea.Bytes()) == string(eb.Bytes())
}
