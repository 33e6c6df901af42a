package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/runtime"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> encoded block
	prefixHeight = []byte("h/") // h/<height(4)> -> hash(32)
	prefixTx     = []byte("x/") // x/<txhash(32)> -> height(4) + blockHash(32)
	keyTip       = []byte("s/tip")
)

// ErrBlockNotFound is returned when a block is not in the store.
var ErrBlockNotFound = errors.New("block not found")

// BlockStore persists blocks and the chain tip to a storage.DB.
type BlockStore struct {
	db     storage.DB
	decode func([]byte) (*runtime.Block, error)
}

// NewBlockStore creates a block store backed by db. Stored blocks are
// decoded with the runtime's codec.
func NewBlockStore(db storage.DB, rt *runtime.Runtime) *BlockStore {
	return &BlockStore{db: db, decode: rt.DecodeBlock}
}

// PutBlock stores a block, indexes it by height and extrinsic hashes and
// moves the tip to it, all in one batch.
func (bs *BlockStore) PutBlock(blk *runtime.Block) error {
	b := storage.NewBatch(bs.Root())
	defer b.Discard()
	if err := bs.StageBlock(b, blk); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit block %s: %w", blk.Hash(), err)
	}
	return nil
}

// Root returns the database the block store's namespace lives in.
func (bs *BlockStore) Root() storage.DB {
	return storage.Root(bs.db)
}

// StageBlock writes everything PutBlock writes into batch, a batch on Root,
// without committing it.
func (bs *BlockStore) StageBlock(batch storage.Batch, blk *runtime.Block) error {
	hash := blk.Hash()
	height := blk.Height()

	b := storage.ScopeBatch(bs.db, batch)
	if err := b.Put(blockKey(hash), blk.Bytes()); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := b.Put(heightKey(height), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}

	// Index each extrinsic by hash -> (height, blockHash).
	for _, t := range blk.Extrinsics {
		txHash := t.Hash()
		if err := b.Put(txKey(txHash), location(height, hash)); err != nil {
			return fmt.Errorf("tx index put %s: %w", txHash, err)
		}
	}

	if err := b.Put(keyTip, location(height, hash)); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*runtime.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	blk, err := bs.decode(data)
	if err != nil {
		return nil, fmt.Errorf("block decode %s: %w", hash, err)
	}
	return blk, nil
}

// GetBlockBytes returns the stored encoding of a block.
func (bs *BlockStore) GetBlockBytes(hash types.Hash) ([]byte, error) {
	data, err := bs.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	return data, nil
}

// GetBlockByHeight retrieves a block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint32) (*runtime.Block, error) {
	hashBytes, err := bs.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("height index get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// GetTip returns the current tip hash and height. ok is false on a fresh
// store.
func (bs *BlockStore) GetTip() (hash types.Hash, height uint32, ok bool, err error) {
	data, err := bs.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, 0, false, nil
	}
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("tip get: %w", err)
	}
	height, hash, err = parseLocation(data)
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("corrupt tip: %w", err)
	}
	return hash, height, true, nil
}

// GetTxLocation returns the height and hash of the block containing the
// given extrinsic.
func (bs *BlockStore) GetTxLocation(txHash types.Hash) (uint32, types.Hash, error) {
	data, err := bs.db.Get(txKey(txHash))
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	height, hash, err := parseLocation(data)
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("corrupt tx index: %w", err)
	}
	return height, hash, nil
}

func location(height uint32, hash types.Hash) []byte {
	val := make([]byte, 4+types.HashSize)
	binary.BigEndian.PutUint32(val[:4], height)
	copy(val[4:], hash[:])
	return val
}

func parseLocation(data []byte) (uint32, types.Hash, error) {
	if len(data) != 4+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("got %d bytes, want %d", len(data), 4+types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], data[4:])
	return binary.BigEndian.Uint32(data[:4]), hash, nil
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func heightKey(height uint32) []byte {
	key := make([]byte, len(prefixHeight)+4)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint32(key[len(prefixHeight):], height)
	return key
}

func txKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}
