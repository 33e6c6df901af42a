// Package utxo stores the live outputs of the ledger.
package utxo

import (
	"errors"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ErrNotFound is returned by Get when no live output exists at a ref.
var ErrNotFound = errors.New("output not found")

// Set is the storage lookup the executive resolves refs against.
type Set interface {
	Get(ref types.OutputRef) (tx.Output, error)
	Put(ref types.OutputRef, out tx.Output) error
	Delete(ref types.OutputRef) error
	Has(ref types.OutputRef) (bool, error)
}

// writer is the write half shared by storage.DB and storage.Batch.
type writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}
