package block

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ComputeExtrinsicsRoot calculates the merkle root of extrinsic hashes.
func ComputeExtrinsicsRoot(hashes []types.Hash) types.Hash {
	return MerkleRoot(hashes)
}

// MerkleRoot calculates the binary merkle root of hashes.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns that hash
//   - Otherwise: pairwise hash, duplicating the last element if odd count,
//     then recurse on the resulting layer until one hash remains.
func MerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := range next {
			next[i] = crypto.HashConcat(level[2*i], level[2*i+1])
		}
		level = next
	}

	return level[0]
}
