package verifier

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
)

// Registry is the set of verifier kinds a runtime accepts.
type Registry struct {
	allowed map[Kind]bool
}

// AllKinds lists every built-in kind.
var AllKinds = []Kind{
	KindUnspendable,
	KindUpForGrabs,
	KindSigCheck,
	KindThresholdMultiSig,
	KindTimeLock,
	KindHashLock,
}

// NewRegistry returns a registry accepting the given kinds.
// With no arguments every built-in kind is accepted.
func NewRegistry(kinds ...Kind) *Registry {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	r := &Registry{allowed: make(map[Kind]bool, len(kinds))}
	for _, k := range kinds {
		r.allowed[k] = true
	}
	return r
}

// Allows reports whether k is part of the registry.
func (r *Registry) Allows(k Kind) bool {
	return r.allowed[k]
}

// NewUnspendable returns the verifier used for system-authored outputs that
// must never be spent, or ErrUnspendableNotSupported when the runtime does
// not carry one.
func (r *Registry) NewUnspendable() (Verifier, error) {
	if !r.allowed[KindUnspendable] {
		return nil, ErrUnspendableNotSupported
	}
	return Unspendable{}, nil
}

// Decode reads a verifier written by Encode.
func (r *Registry) Decode(d *codec.Decoder) (Verifier, error) {
	k := Kind(d.Uint8())
	if err := d.Err(); err != nil {
		return nil, err
	}
	if !r.allowed[k] {
		if k > KindHashLock {
			return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
		}
		return nil, fmt.Errorf("%w: %s", ErrKindNotAllowed, k)
	}

	switch k {
	case KindUnspendable:
		return Unspendable{}, nil
	case KindUpForGrabs:
		return UpForGrabs{}, nil
	case KindSigCheck:
		var v SigCheck
		d.Value(&v)
		return v, d.Err()
	case KindThresholdMultiSig:
		var v ThresholdMultiSignature
		d.Value(&v)
		return v, d.Err()
	case KindTimeLock:
		var v TimeLock
		d.Value(&v)
		return v, d.Err()
	case KindHashLock:
		var v HashLock
		d.Value(&v)
		return v, d.Err()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
}

// DecodeBytes decodes a standalone verifier encoding.
func (r *Registry) DecodeBytes(b []byte) (Verifier, error) {
	d := codec.NewDecoder(b)
	v, err := r.Decode(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return v, nil
}
