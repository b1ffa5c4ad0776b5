// Package promptcache tracks which prompt prefix a runtime cache already
// holds so a generation only evaluates the tokens past the shared prefix.
package promptcache

import (
	"omnid/internal/engine"
)

// PromptCache pairs runtime cache state with the logical token history it
// represents. It is owned by one request at a time and is not safe for
// concurrent use.
type PromptCache struct {
	owner   engine.Model
	state   engine.Cache
	tokens  []engine.Token
	pending []engine.Token
	cached  int
	rebuilt bool
}

// New returns an empty cache bound to no model.
func New() *PromptCache { return &PromptCache{} }

// Model returns the model the cache state was built for.
func (pc *PromptCache) Model() engine.Model { return pc.owner }

// State returns the runtime cache to pass to engine.Request.
func (pc *PromptCache) State() engine.Cache { return pc.state }

// Tokens returns the logical token history.
func (pc *PromptCache) Tokens() []engine.Token { return pc.tokens }

// CachedTokens is the number of prompt tokens reused by the last Reconcile.
func (pc *PromptCache) CachedTokens() int { return pc.cached }

// Rebuilt reports whether the last Reconcile discarded previous state.
func (pc *PromptCache) Rebuilt() bool { return pc.rebuilt }

// Reconcile prepares the cache for prompt on model m and returns the suffix
// of prompt that still has to be evaluated. State built for another model,
// reclaimed by the runtime, or out of step with the logical history is
// discarded and rebuilt from empty. At least one prompt token is always
// left to evaluate so the runtime has logits to sample from.
func (pc *PromptCache) Reconcile(m engine.Model, prompt []engine.Token) ([]engine.Token, error) {
	pc.rebuilt = false
	if pc.owner != m || pc.state == nil || !pc.state.Valid() || pc.state.Len() != len(pc.tokens) {
		if err := pc.rebuild(m); err != nil {
			return nil, err
		}
	}
	n := commonPrefix(pc.tokens, prompt)
	if n == len(prompt) && n > 0 {
		n--
	}
	if n < len(pc.tokens) {
		if err := pc.state.Trim(n); err != nil {
			if err := pc.rebuild(m); err != nil {
				return nil, err
			}
			n = 0
		}
	}
	pc.tokens = append(pc.tokens[:0:0], prompt[:n]...)
	pc.cached = n
	pc.pending = append(pc.pending[:0:0], prompt[n:]...)
	return pc.pending, nil
}

// Extend records the evaluated prompt suffix and the produced tokens, then
// brings logical history and runtime state to the same length. Runtimes do
// not always evaluate the final sampled token, and stop trimming removes
// tokens the runtime did evaluate; both are reconciled here in one step.
func (pc *PromptCache) Extend(produced []engine.Token) error {
	if pc.state == nil {
		return nil
	}
	pc.tokens = append(pc.tokens, pc.pending...)
	pc.tokens = append(pc.tokens, produced...)
	pc.pending = nil
	switch have := pc.state.Len(); {
	case have > len(pc.tokens):
		if err := pc.state.Trim(len(pc.tokens)); err != nil {
			pc.Reset()
			return err
		}
	case have < len(pc.tokens):
		pc.tokens = pc.tokens[:have]
	}
	return nil
}

// Reset drops runtime state and history. The next Reconcile rebuilds.
func (pc *PromptCache) Reset() {
	if pc.state != nil {
		_ = pc.state.Close()
	}
	pc.state = nil
	pc.tokens = nil
	pc.pending = nil
	pc.cached = 0
}

// Close releases runtime state.
func (pc *PromptCache) Close() error {
	pc.Reset()
	pc.owner = nil
	return nil
}

func (pc *PromptCache) rebuild(m engine.Model) error {
	pc.Reset()
	pc.owner = m
	pc.rebuilt = true
	st, err := m.NewCache()
	if err != nil {
		return err
	}
	pc.state = st
	return nil
}

func commonPrefix(a, b []engine.Token) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
