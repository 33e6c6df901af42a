package mempool

// Evict removes the lowest priority transactions until the pool is at or
// below maxSize.
func (p *Pool[C]) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.txs) <= p.maxSize {
		return 0
	}

	entries := p.sorted()
	evicted := 0
	for i := len(entries) - 1; i >= 0 && len(p.txs) > p.maxSize; i-- {
		p.removeLocked(entries[i].txHash)
		evicted++
	}
	return evicted
}

// SetMaxSize changes the pool capacity and evicts down to it.
func (p *Pool[C]) SetMaxSize(n int) int {
	p.mu.Lock()
	if n <= 0 {
		n = DefaultMaxSize
	}
	p.maxSize = n
	p.mu.Unlock()
	return p.Evict()
}

// Revalidate drops every entry the validator no longer accepts, for example
// after a block consumed one of its peeks. It returns the number dropped.
func (p *Pool[C]) Revalidate() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	for h, e := range p.txs {
		priority, err := p.validator.ValidateForNextBlock(e.tx)
		if err != nil {
			p.removeLocked(h)
			dropped++
			continue
		}
		e.priority = priority
	}
	return dropped
}
