package utxo

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Commitment computes a merkle root over all live outputs in the store.
// Leaves are visited in ref order, so the root depends only on the set's
// contents. Returns a zero hash for an empty set.
func Commitment(store *Store) (types.Hash, error) {
	var hashes []types.Hash

	err := store.ForEach(func(ref types.OutputRef, out tx.Output) error {
		hashes = append(hashes, hashOutput(ref, out))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("output commitment: %w", err)
	}
	return block.MerkleRoot(hashes), nil
}

// hashOutput produces the leaf hash: BLAKE3(ref | encoded output).
func hashOutput(ref types.OutputRef, out tx.Output) types.Hash {
	return crypto.HashAll(codec.Encode(ref), codec.Encode(out))
}
