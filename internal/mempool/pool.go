// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrInherent      = errors.New("inherents cannot be submitted to the mempool")
)

// DefaultMaxSize is the pool capacity used when none is configured.
const DefaultMaxSize = 5000

// Checker is what the pool needs to know about a transaction's checker.
type Checker interface {
	codec.Encodable
	IsInherent() bool
}

// Validator checks a transaction against the committed output set for
// inclusion in the next block and returns its priority.
type Validator[C Checker] interface {
	ValidateForNextBlock(t tx.Transaction[C]) (constraint.Priority, error)
}

// entry wraps a transaction with its priority.
type entry[C Checker] struct {
	tx       tx.Transaction[C]
	txHash   types.Hash
	priority constraint.Priority
}

// less orders entries by priority descending, then hash ascending.
func (e *entry[C]) less(o *entry[C]) bool {
	if e.priority != o.priority {
		return e.priority > o.priority
	}
	return bytes.Compare(e.txHash[:], o.txHash[:]) < 0
}

// Pool holds unconfirmed transactions.
type Pool[C Checker] struct {
	mu        sync.RWMutex
	txs       map[types.Hash]*entry[C]       // txHash -> entry
	spends    map[types.OutputRef]types.Hash // consumed or evicted ref -> txHash (conflict index)
	maxSize   int
	validator Validator[C]
	policy    *Policy
}

// New creates a new mempool validating through v.
func New[C Checker](v Validator[C], maxSize int) *Pool[C] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool[C]{
		txs:       make(map[types.Hash]*entry[C]),
		spends:    make(map[types.OutputRef]types.Hash),
		maxSize:   maxSize,
		validator: v,
		policy:    DefaultPolicy(),
	}
}

// SetPolicy replaces the acceptance policy.
func (p *Pool[C]) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// removedRefs returns the refs a transaction takes out of the output set.
func removedRefs[C Checker](t tx.Transaction[C]) []types.OutputRef {
	refs := make([]types.OutputRef, 0, len(t.Inputs)+len(t.Evictions))
	for _, in := range t.Inputs {
		refs = append(refs, in.OutputRef)
	}
	return append(refs, t.Evictions...)
}

// Add validates and adds a transaction to the mempool and returns its
// priority. Rejects inherents, duplicates and transactions consuming or
// evicting a ref another entry already removes.
func (p *Pool[C]) Add(transaction tx.Transaction[C]) (constraint.Priority, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if transaction.Checker.IsInherent() {
		return 0, ErrInherent
	}

	// Hashing needs a well-formed transaction.
	if err := transaction.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	txHash := transaction.Hash()

	// Reject duplicates.
	if _, exists := p.txs[txHash]; exists {
		return 0, ErrAlreadyExists
	}

	if p.policy != nil {
		if err := CheckPolicy(p.policy, transaction); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	// Check for conflicts. Peeks never conflict.
	for _, ref := range removedRefs(transaction) {
		if conflictHash, exists := p.spends[ref]; exists {
			return 0, fmt.Errorf("%w: %s already removed by %s", ErrConflict, ref, conflictHash)
		}
	}

	priority, err := p.validator.ValidateForNextBlock(transaction)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	e := &entry[C]{
		tx:       transaction,
		txHash:   txHash,
		priority: priority,
	}

	// Check pool capacity; evict the lowest entry if the new one ranks higher.
	if len(p.txs) >= p.maxSize {
		lowest := p.findLowest()
		if lowest == nil || !e.less(lowest) {
			return 0, ErrPoolFull
		}
		p.removeLocked(lowest.txHash)
	}

	p.txs[txHash] = e
	for _, ref := range removedRefs(transaction) {
		p.spends[ref] = txHash
	}

	klog.Mempool.Debug().
		Str("tx", txHash.String()).
		Uint64("priority", uint64(priority)).
		Int("pool_size", len(p.txs)).
		Msg("Transaction added")
	return priority, nil
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool[C]) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool[C]) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	// Clean up conflict index.
	for _, ref := range removedRefs(e.tx) {
		delete(p.spends, ref)
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed removes the transactions included in a block, together
// with every entry that removes a ref the block already removed.
func (p *Pool[C]) RemoveConfirmed(transactions []tx.Transaction[C]) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := len(p.txs)
	for _, t := range transactions {
		p.removeLocked(t.Hash())
		for _, ref := range removedRefs(t) {
			if h, ok := p.spends[ref]; ok {
				p.removeLocked(h)
			}
		}
	}
	return before - len(p.txs)
}

// Has checks if a transaction exists in the mempool.
func (p *Pool[C]) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool[C]) Get(txHash types.Hash) (tx.Transaction[C], bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return tx.Transaction[C]{}, false
	}
	return e.tx, true
}

// Priority returns the priority of a pooled transaction (0 if not found).
func (p *Pool[C]) Priority(txHash types.Hash) constraint.Priority {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return 0
	}
	return e.priority
}

// Count returns the number of transactions in the mempool.
func (p *Pool[C]) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all transactions in the mempool.
func (p *Pool[C]) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// findLowest returns the lowest ranked entry. Must be called with p.mu held.
func (p *Pool[C]) findLowest() *entry[C] {
	var lowest *entry[C]
	for _, e := range p.txs {
		if lowest == nil || lowest.less(e) {
			lowest = e
		}
	}
	return lowest
}

// sorted returns all entries, highest ranked first. Must be called with
// p.mu held.
func (p *Pool[C]) sorted() []*entry[C] {
	entries := make([]*entry[C], 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].less(entries[j])
	})
	return entries
}

// SelectForBlock returns transactions ordered by priority (highest first),
// up to the given limit.
func (p *Pool[C]) SelectForBlock(limit int) []tx.Transaction[C] {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sorted()
	if limit > len(entries) {
		limit = len(entries)
	}

	result := make([]tx.Transaction[C], limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}
