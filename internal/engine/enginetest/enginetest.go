// Package enginetest provides a deterministic in-memory runtime for tests.
// Its tokenizer is byte level: every byte of text is one token.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"omnid/internal/engine"
)

// ByteTokenizer maps each byte to one token.
type ByteTokenizer struct{}

func (ByteTokenizer) Encode(_ context.Context, text string) ([]engine.Token, error) {
	out := make([]engine.Token, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = engine.Token(text[i])
	}
	return out, nil
}

func (ByteTokenizer) Decode(_ context.Context, tokens []engine.Token) (string, error) {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		if t < 0 || t > 255 {
			return "", errors.New("enginetest: token out of range")
		}
		b[i] = byte(t)
	}
	return string(b), nil
}

// Model replies with Reply(context) where context is the decoded text of
// everything the cache held plus the evaluated tokens, so a cache that is
// out of sync with its logical history changes the output.
type Model struct {
	Name string
	// Reply computes the completion for the full context text.
	Reply func(context string) string
	// FailAfter makes Generate return Err after yielding that many tokens (when Err != nil).
	FailAfter int
	Err       error
	// Delay is slept before every token and observes cancellation.
	Delay time.Duration

	mu       sync.Mutex
	last     engine.Request
	calls    int
	inflight atomic.Int32
	maxSeen  atomic.Int32
	closed   atomic.Bool
}

// Echo returns a Model replying with the fixed text.
func Echo(name, reply string) *Model {
	return &Model{Name: name, Reply: func(string) string { return reply }}
}

func (m *Model) ID() string                 { return m.Name }
func (m *Model) Tokenizer() engine.Tokenizer { return ByteTokenizer{} }

func (m *Model) NewCache() (engine.Cache, error) { return &Cache{owner: m}, nil }

func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// LastRequest returns the most recent generation request.
func (m *Model) LastRequest() engine.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Calls returns how many times Generate ran.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxConcurrent returns the highest number of overlapping Generate calls observed.
func (m *Model) MaxConcurrent() int { return int(m.maxSeen.Load()) }

func (m *Model) Generate(ctx context.Context, req engine.Request, yield func(engine.Step) bool) (engine.Summary, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	m.mu.Lock()
	m.last = engine.Request{Cache: req.Cache, Tokens: append([]engine.Token(nil), req.Tokens...), Options: req.Options}
	m.calls++
	m.mu.Unlock()

	c, ok := req.Cache.(*Cache)
	if !ok || c.owner != m {
		return engine.Summary{}, engine.ErrCacheOwner
	}
	c.tokens = append(c.tokens, req.Tokens...)
	ctxText, _ := ByteTokenizer{}.Decode(ctx, c.tokens)
	reply := ""
	if m.Reply != nil {
		reply = m.Reply(ctxText)
	}
	sum := engine.Summary{PromptTokens: len(req.Tokens), FinishReason: engine.FinishStop}
	limit := req.Options.MaxTokens
	for i := 0; i < len(reply); i++ {
		if limit > 0 && i >= limit {
			sum.FinishReason = engine.FinishLength
			break
		}
		if m.Err != nil && i >= m.FailAfter {
			return sum, m.Err
		}
		if m.Delay > 0 {
			select {
			case <-time.After(m.Delay):
			case <-ctx.Done():
				return sum, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		tok := engine.Token(reply[i])
		// The sampled token is evaluated only when generation continues past it.
		if i > 0 {
			c.tokens = append(c.tokens, engine.Token(reply[i-1]))
		}
		step := engine.Step{Token: tok, Logprob: -0.5}
		if req.Options.TopLogprobs > 0 {
			step.Top = append(step.Top, engine.Candidate{Token: tok, Logprob: -0.5})
			for k := 1; k < req.Options.TopLogprobs; k++ {
				step.Top = append(step.Top, engine.Candidate{Token: engine.Token('a' + k - 1), Logprob: -0.5 - float64(k)})
			}
		}
		sum.GeneratedTokens++
		if !yield(step) {
			return sum, nil
		}
	}
	if m.Err != nil {
		return sum, m.Err
	}
	return sum, nil
}

// Cache records the evaluated token sequence.
type Cache struct {
	owner   *Model
	tokens  []engine.Token
	invalid bool
}

func (c *Cache) Len() int { return len(c.tokens) }

func (c *Cache) Trim(n int) error {
	if n < 0 || n > len(c.tokens) {
		return errors.New("enginetest: trim out of range")
	}
	c.tokens = c.tokens[:n]
	return nil
}

func (c *Cache) Valid() bool { return !c.invalid }

// Invalidate simulates the runtime reclaiming the state.
func (c *Cache) Invalidate() { c.invalid = true }

func (c *Cache) Close() error { c.tokens = nil; return nil }

// Tokens returns a copy of the evaluated sequence.
func (c *Cache) Tokens() []engine.Token { return append([]engine.Token(nil), c.tokens...) }

// Loader hands out models built by New and counts loads per key.
type Loader struct {
	New   func(spec engine.LoadSpec) (engine.Model, error)
	Delay time.Duration

	mu    sync.Mutex
	loads map[string]int
}

func (l *Loader) Load(ctx context.Context, spec engine.LoadSpec) (engine.Model, error) {
	l.mu.Lock()
	if l.loads == nil {
		l.loads = make(map[string]int)
	}
	l.loads[spec.ID+"|"+spec.AdapterPath]++
	l.mu.Unlock()
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.New == nil {
		return Echo(spec.ID, "ok"), nil
	}
	return l.New(spec)
}

// Loads returns how many times the key (id, adapter) was loaded.
func (l *Loader) Loads(id, adapter string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id+"|"+adapter]
}
