package chain

import "github.com/Klingon-tech/klingnet-ledger/pkg/types"

// State holds the current chain tip state.
type State struct {
	Height  uint32
	TipHash types.Hash
}

// IsGenesis returns true if no block has been imported yet.
func (s State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}
