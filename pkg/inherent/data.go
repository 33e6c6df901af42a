// Package inherent implements block-author-inserted transactions.
//
// Inherents carry environmental facts (the block timestamp, for example) that
// the author injects directly into the block body. State in a UTXO ledger
// lives only in outputs, so an inherent that updates such a fact must consume
// or reference the output written by the previous block's inherent. The
// runtime cannot look that output up by itself; instead the author hands it
// the whole parent block through the inherent data and the runtime scrapes
// the previous inherent out of it.
package inherent

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
)

// IdentifierSize is the length of an inherent identifier.
const IdentifierSize = 8

// Identifier names one entry of the inherent data bundle.
type Identifier [IdentifierSize]byte

// String returns the identifier as text.
func (id Identifier) String() string {
	return string(id[:])
}

// MustIdentifier converts an 8-character string to an Identifier. It panics
// on any other length, so it is only meant for package-level constants.
func MustIdentifier(s string) Identifier {
	if len(s) != IdentifierSize {
		panic(errors.AssertionFailedf("inherent identifier %q must be %d bytes", s, IdentifierSize))
	}
	var id Identifier
	copy(id[:], s)
	return id
}

// Well-known identifiers.
var (
	// ParentBlockIdentifier carries the full encoded parent block.
	ParentBlockIdentifier = MustIdentifier("prnt_blk")
	// TimestampIdentifier carries the node's local time in unix milliseconds.
	TimestampIdentifier = MustIdentifier("timstap0")
)

// Data bundle errors.
var (
	ErrDataExists    = errors.New("inherent data already present")
	ErrDataMissing   = errors.New("inherent data missing")
	ErrDataMalformed = errors.New("inherent data malformed")
)

// Data is the inherent data bundle: identifier to encoded value. It is
// populated concurrently by providers and read by create/check hooks.
type Data struct {
	mu      sync.RWMutex
	entries map[Identifier][]byte
}

// NewData returns an empty bundle.
func NewData() *Data {
	return &Data{entries: make(map[Identifier][]byte)}
}

// Put stores b under id. Each identifier may be written once.
func (d *Data) Put(id Identifier, b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; ok {
		return errors.Wrapf(ErrDataExists, "identifier %s", id)
	}
	d.entries[id] = append([]byte(nil), b...)
	return nil
}

// Replace stores b under id, overwriting any previous value.
func (d *Data) Replace(id Identifier, b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[id] = append([]byte(nil), b...)
}

// PutValue stores the canonical encoding of v.
func (d *Data) PutValue(id Identifier, v codec.Encodable) error {
	return d.Put(id, codec.Encode(v))
}

// PutUint64 stores a little-endian u64.
func (d *Data) PutUint64(id Identifier, v uint64) error {
	e := codec.NewEncoder()
	e.Uint64(v)
	return d.Put(id, e.Bytes())
}

// Get returns a copy of the bytes stored under id.
func (d *Data) Get(id Identifier) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.entries[id]
	if !ok {
		return nil, errors.Wrapf(ErrDataMissing, "identifier %s", id)
	}
	return append([]byte(nil), b...), nil
}

// Has reports whether id is present.
func (d *Data) Has(id Identifier) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[id]
	return ok
}

// Decode decodes the value stored under id into v.
func (d *Data) Decode(id Identifier, v codec.Decodable) error {
	b, err := d.Get(id)
	if err != nil {
		return err
	}
	if err := codec.Decode(b, v); err != nil {
		return errors.Wrapf(ErrDataMalformed, "identifier %s: %v", id, err)
	}
	return nil
}

// Uint64 decodes a value stored with PutUint64.
func (d *Data) Uint64(id Identifier) (uint64, error) {
	b, err := d.Get(id)
	if err != nil {
		return 0, err
	}
	dec := codec.NewDecoder(b)
	v := dec.Uint64()
	if err := dec.Finish(); err != nil {
		return 0, errors.Wrapf(ErrDataMalformed, "identifier %s: %v", id, err)
	}
	return v, nil
}

// Len returns the number of entries.
func (d *Data) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Identifiers returns the identifiers present, sorted.
func (d *Data) Identifiers() []Identifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]Identifier, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return string(ids[i][:]) < string(ids[j][:]) })
	return ids
}
