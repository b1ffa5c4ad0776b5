package llamaserver

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"omnid/internal/engine"
)

// Model is a model served by one llama-server process. Generation requests
// are serialized by the caller; tokenization may run concurrently.
type Model struct {
	id      string
	baseURL string
	client  *http.Client
	proc    *process
	slots   *slotTable
	log     zerolog.Logger
	onClose func()
	closed  atomic.Bool
}

func newModel(id, baseURL string, client *http.Client, slots int, log zerolog.Logger) *Model {
	return &Model{id: id, baseURL: baseURL, client: client, slots: newSlotTable(slots), log: log}
}

func (m *Model) ID() string { return m.id }

func (m *Model) Tokenizer() engine.Tokenizer { return tokenizer{m} }

// NewCache pins a server slot for a new prompt cache.
func (m *Model) NewCache() (engine.Cache, error) {
	c := &Cache{m: m}
	m.slots.assign(c)
	return c, nil
}

func (m *Model) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

// Generate evaluates the cache history plus req.Tokens on the cache's slot.
// The server reuses whatever prefix the slot already holds.
func (m *Model) Generate(ctx context.Context, req engine.Request, yield func(engine.Step) bool) (engine.Summary, error) {
	c, ok := req.Cache.(*Cache)
	if !ok || c.m != m {
		return engine.Summary{}, engine.ErrCacheOwner
	}
	if m.proc != nil && !m.proc.alive() {
		return engine.Summary{}, m.proc.exitError()
	}
	m.slots.touch(c)
	prompt := append(append([]engine.Token(nil), c.tokens...), req.Tokens...)
	sum := engine.Summary{PromptTokens: len(req.Tokens), FinishReason: engine.FinishStop}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	resp, err := post(ctx, m.client, m.baseURL, "/completion", newCompletionRequest(prompt, req.Options, c.slot))
	if err != nil {
		return sum, err
	}
	defer resp.Body.Close()

	var generated []engine.Token
	err = readEvents(ctx, resp.Body, func(ev completionEvent) (bool, error) {
		for i, tok := range ev.Tokens {
			step := engine.Step{Token: tok}
			if i < len(ev.Probs) {
				p := ev.Probs[i]
				step.Logprob = p.Logprob
				for _, alt := range p.Top {
					step.Top = append(step.Top, engine.Candidate{Token: alt.ID, Logprob: alt.Logprob})
				}
			}
			generated = append(generated, tok)
			if !yield(step) {
				return false, nil
			}
		}
		if ev.Stop {
			if ev.StopType == "limit" {
				sum.FinishReason = engine.FinishLength
			}
			return false, nil
		}
		return true, nil
	})
	sum.GeneratedTokens = len(generated)
	// The last sampled token has not been evaluated into the slot.
	if len(generated) > 0 {
		generated = generated[:len(generated)-1]
	}
	c.tokens = append(prompt, generated...)
	if err != nil {
		return sum, err
	}
	return sum, ctx.Err()
}

type tokenizer struct{ m *Model }

func (t tokenizer) Encode(ctx context.Context, text string) ([]engine.Token, error) {
	var out tokenizeResponse
	if err := postJSON(ctx, t.m.client, t.m.baseURL, "/tokenize", tokenizeRequest{Content: text, ParseSpecial: true}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (t tokenizer) Decode(ctx context.Context, tokens []engine.Token) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	var out detokenizeResponse
	if err := postJSON(ctx, t.m.client, t.m.baseURL, "/detokenize", detokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Cache is a prompt cache pinned to one server slot.
type Cache struct {
	m      *Model
	slot   int
	tokens []engine.Token
	// lost is set when the slot was reclaimed for another cache.
	lost bool
}

func (c *Cache) Len() int { return len(c.tokens) }

func (c *Cache) Trim(n int) error {
	if n < len(c.tokens) {
		c.tokens = c.tokens[:n]
	}
	return nil
}

func (c *Cache) Valid() bool {
	if c.m.proc != nil && !c.m.proc.alive() {
		return false
	}
	return !c.m.slots.lost(c)
}

func (c *Cache) Close() error {
	c.m.slots.release(c)
	c.tokens = nil
	return nil
}

// slotTable maps server slots to the caches pinning them.
type slotTable struct {
	mu     sync.Mutex
	owners []*Cache
	used   []uint64
	clock  uint64
}

func newSlotTable(n int) *slotTable {
	return &slotTable{owners: make([]*Cache, n), used: make([]uint64, n)}
}

// assign gives c a free slot, reclaiming the least recently used one when
// every slot is pinned.
func (t *slotTable) assign(c *Cache) {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := -1
	for i, o := range t.owners {
		if o == nil {
			best = i
			break
		}
		if best < 0 || t.used[i] < t.used[best] {
			best = i
		}
	}
	if prev := t.owners[best]; prev != nil {
		prev.lost = true
	}
	t.clock++
	t.owners[best] = c
	t.used[best] = t.clock
	c.slot = best
}

func (t *slotTable) touch(c *Cache) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !c.lost && t.owners[c.slot] == c {
		t.clock++
		t.used[c.slot] = t.clock
	}
}

func (t *slotTable) lost(c *Cache) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return c.lost
}

func (t *slotTable) release(c *Cache) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !c.lost && t.owners[c.slot] == c {
		t.owners[c.slot] = nil
	}
	c.lost = true
}
