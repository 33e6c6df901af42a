package utxo

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Overlay stages changes on top of a Store. Reads see staged changes first.
// Nothing reaches the store until Commit, which writes every change through
// a single batch. Dropping an overlay without committing discards it.
//
// An Overlay is not safe for concurrent use.
type Overlay struct {
	base    *Store
	added   map[types.OutputRef]tx.Output
	deleted map[types.OutputRef]struct{}
}

// NewOverlay creates an empty overlay over base.
func NewOverlay(base *Store) *Overlay {
	return &Overlay{
		base:    base,
		added:   make(map[types.OutputRef]tx.Output),
		deleted: make(map[types.OutputRef]struct{}),
	}
}

// Get returns the staged output at ref, falling back to the store.
func (o *Overlay) Get(ref types.OutputRef) (tx.Output, error) {
	if out, ok := o.added[ref]; ok {
		return out, nil
	}
	if _, ok := o.deleted[ref]; ok {
		return tx.Output{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return o.base.Get(ref)
}

// Put stages the creation of an output.
func (o *Overlay) Put(ref types.OutputRef, out tx.Output) error {
	o.added[ref] = out
	return nil
}

// Delete stages the removal of an output.
func (o *Overlay) Delete(ref types.OutputRef) error {
	delete(o.added, ref)
	o.deleted[ref] = struct{}{}
	return nil
}

// Has reports whether ref resolves through the overlay.
func (o *Overlay) Has(ref types.OutputRef) (bool, error) {
	_, err := o.Get(ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Len returns the number of staged changes.
func (o *Overlay) Len() int {
	return len(o.added) + len(o.deleted)
}

// Commit writes all staged changes to the store atomically and resets the
// overlay.
func (o *Overlay) Commit() error {
	b := storage.NewBatch(o.base.Root())
	defer b.Discard()
	if err := o.StageTo(b); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit overlay: %w", err)
	}
	o.Discard()
	return nil
}

// StageTo writes all staged changes into b without committing it, so they
// can land together with other writes to the same database. b must be a
// batch on the store's Root. Deletions are written before creations.
func (o *Overlay) StageTo(b storage.Batch) error {
	w := storage.ScopeBatch(o.base.db, b)
	for _, ref := range sortedRefs(o.deleted) {
		if err := o.base.deleteTo(w, ref); err != nil {
			return err
		}
	}
	for _, ref := range sortedRefs(o.added) {
		if err := putOutput(w, ref, o.added[ref]); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops all staged changes.
func (o *Overlay) Discard() {
	o.added = make(map[types.OutputRef]tx.Output)
	o.deleted = make(map[types.OutputRef]struct{})
}

func sortedRefs[V any](m map[types.OutputRef]V) []types.OutputRef {
	refs := make([]types.OutputRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].Key(), refs[j].Key()) < 0
	})
	return refs
}
