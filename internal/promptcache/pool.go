package promptcache

import (
	"sync"

	"omnid/internal/engine"
)

// DefaultPoolSize is the number of idle caches kept per model.
const DefaultPoolSize = 4

// Pool keeps idle caches for one model between requests. A cache checked
// out with Get belongs to the caller until Put or Discard, so concurrent
// requests never share cache state.
type Pool struct {
	mu    sync.Mutex
	model engine.Model
	idle  []*PromptCache
	size  int
}

// NewPool creates a pool for m keeping up to size idle caches.
func NewPool(m engine.Model, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{model: m, size: size}
}

// Get checks out the idle cache sharing the longest prefix with prompt, or
// a fresh one when none shares anything.
func (p *Pool) Get(prompt []engine.Token) *PromptCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	best, bestLen := -1, 0
	for i, pc := range p.idle {
		if n := commonPrefix(pc.tokens, prompt); n > bestLen {
			best, bestLen = i, n
		}
	}
	if best < 0 {
		if len(p.idle) < p.size {
			return New()
		}
		// Reuse the oldest slot rather than growing past size.
		best = 0
	}
	pc := p.idle[best]
	p.idle = append(p.idle[:best], p.idle[best+1:]...)
	return pc
}

// Put returns a cache to the idle set, closing the least recently returned
// one when the pool is full.
func (p *Pool) Put(pc *PromptCache) {
	if pc == nil {
		return
	}
	if pc.owner != p.model {
		_ = pc.Close()
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, pc)
	var drop *PromptCache
	if len(p.idle) > p.size {
		drop = p.idle[0]
		p.idle = p.idle[1:]
	}
	p.mu.Unlock()
	if drop != nil {
		_ = drop.Close()
	}
}

// Discard closes a checked-out cache whose state can no longer be trusted.
func (p *Pool) Discard(pc *PromptCache) {
	if pc != nil {
		_ = pc.Close()
	}
}

// Idle returns the number of idle caches.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close releases every idle cache.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, pc := range idle {
		_ = pc.Close()
	}
}
