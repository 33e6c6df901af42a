package utxo

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Key prefixes for the output store.
var (
	prefixOutput = []byte("u/") // u/<txhash><index> -> encoded output
	prefixType   = []byte("t/") // t/<typeid><txhash><index> -> empty (payload type index)
)

// Store implements Set backed by a storage.DB.
type Store struct {
	db        storage.DB
	verifiers *verifier.Registry
}

// NewStore creates an output store. Stored verifiers are decoded through
// verifiers; a nil registry accepts every built-in kind.
func NewStore(db storage.DB, verifiers *verifier.Registry) *Store {
	if verifiers == nil {
		verifiers = verifier.NewRegistry()
	}
	return &Store{db: db, verifiers: verifiers}
}

// Root returns the database the store's namespace lives in.
func (s *Store) Root() storage.DB {
	return storage.Root(s.db)
}

// outputKey builds a storage key for a ref: "u/" + txhash(32) + index(4).
func outputKey(ref types.OutputRef) []byte {
	return append(append([]byte{}, prefixOutput...), ref.Key()...)
}

// typeKey builds a type index key: "t/" + typeid(4) + txhash(32) + index(4).
func typeKey(id dynamic.TypeID, ref types.OutputRef) []byte {
	key := make([]byte, 0, len(prefixType)+dynamic.TypeIDSize+types.OutputRefSize)
	key = append(key, prefixType...)
	key = append(key, id[:]...)
	return append(key, ref.Key()...)
}

// Get retrieves the output at ref.
func (s *Store) Get(ref types.OutputRef) (tx.Output, error) {
	data, err := s.db.Get(outputKey(ref))
	if errors.Is(err, storage.ErrNotFound) {
		return tx.Output{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return tx.Output{}, fmt.Errorf("output get: %w", err)
	}
	out, err := tx.DecodeOutputBytes(data, s.verifiers)
	if err != nil {
		return tx.Output{}, fmt.Errorf("output decode %s: %w", ref, err)
	}
	return out, nil
}

// Put stores an output and indexes it by payload type.
func (s *Store) Put(ref types.OutputRef, out tx.Output) error {
	return putOutput(s.db, ref, out)
}

func putOutput(w writer, ref types.OutputRef, out tx.Output) error {
	if err := w.Put(outputKey(ref), codec.Encode(out)); err != nil {
		return fmt.Errorf("output put: %w", err)
	}
	if err := w.Put(typeKey(out.Payload.Type, ref), []byte{}); err != nil {
		return fmt.Errorf("type index put: %w", err)
	}
	return nil
}

// Delete removes an output and its type index entry.
func (s *Store) Delete(ref types.OutputRef) error {
	return s.deleteTo(s.db, ref)
}

func (s *Store) deleteTo(w writer, ref types.OutputRef) error {
	// Read first to clean up the secondary index.
	out, err := s.Get(ref)
	if err == nil {
		if err := w.Delete(typeKey(out.Payload.Type, ref)); err != nil {
			return fmt.Errorf("type index delete: %w", err)
		}
	}
	if err := w.Delete(outputKey(ref)); err != nil {
		return fmt.Errorf("output delete: %w", err)
	}
	return nil
}

// Has checks if an output exists at ref.
func (s *Store) Has(ref types.OutputRef) (bool, error) {
	return s.db.Has(outputKey(ref))
}

// ForEach iterates over all outputs in ref order.
func (s *Store) ForEach(fn func(types.OutputRef, tx.Output) error) error {
	return s.db.ForEach(prefixOutput, func(key, value []byte) error {
		ref, err := types.OutputRefFromKey(key[len(prefixOutput):])
		if err != nil {
			return err
		}
		out, err := tx.DecodeOutputBytes(value, s.verifiers)
		if err != nil {
			return fmt.Errorf("output decode %s: %w", ref, err)
		}
		return fn(ref, out)
	})
}

// RefsByType returns the refs of all live outputs whose payload carries
// the given type tag. It scans the type index.
func (s *Store) RefsByType(id dynamic.TypeID) ([]types.OutputRef, error) {
	prefix := append(append([]byte{}, prefixType...), id[:]...)

	var refs []types.OutputRef
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		ref, err := types.OutputRefFromKey(key[len(prefix):])
		if err != nil {
			return nil // Malformed key, skip.
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan type index: %w", err)
	}
	return refs, nil
}

// ClearAll removes all outputs and their type index.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixOutput, prefixType} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	b := storage.NewBatch(s.db)
	for _, key := range keys {
		if err := b.Delete(key); err != nil {
			return fmt.Errorf("delete output key: %w", err)
		}
	}
	return b.Commit()
}
