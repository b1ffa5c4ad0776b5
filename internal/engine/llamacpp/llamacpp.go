//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/google/uuid"

	"omnid/internal/engine"
)

// Runtime loads GGUF models into this process.
type Runtime struct{ cfg Config }

// New returns an in-process runtime.
func New(cfg Config) *Runtime {
	if cfg.CacheDir == "" {
		cfg.CacheDir = os.TempDir()
	}
	return &Runtime{cfg: cfg}
}

// Check always succeeds: the library is linked in.
func (r *Runtime) Check() error { return nil }

func (r *Runtime) Load(_ context.Context, spec engine.LoadSpec) (engine.Model, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{llama.SetContext(r.cfg.CtxSize)}
	if r.cfg.NGL > 0 {
		mo = append(mo, llama.SetGPULayers(r.cfg.NGL))
	}
	if spec.AdapterPath != "" {
		mo = append(mo, llama.SetLoraAdapter(spec.AdapterPath))
	}
	l, err := llama.New(spec.Path, mo...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", spec.Path, err)
	}
	r.cfg.Logger.Info().Str("model", spec.ID).Str("path", spec.Path).Msg("llama model loaded")
	return &Model{id: spec.ID, l: l, cfg: r.cfg, pieces: newPieceTable(), prompts: newPromptMemo(64)}, nil
}

// Model is one loaded go-llama.cpp model. The library holds a single
// context, so Generate calls are serialized.
type Model struct {
	id      string
	cfg     Config
	pieces  *pieceTable
	prompts *promptMemo

	mu sync.Mutex
	l  *llama.LLama
}

func (m *Model) ID() string                  { return m.id }
func (m *Model) Tokenizer() engine.Tokenizer { return tokenizer{m} }

// NewCache returns a cache backed by a prompt state file.
func (m *Model) NewCache() (engine.Cache, error) {
	path := filepath.Join(m.cfg.CacheDir, "omnid-prompt-"+uuid.NewString()+".bin")
	return &cache{owner: m, path: path, drop: func(p string) { _ = os.Remove(p) }}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l != nil {
		m.l.Free()
		m.l = nil
	}
	return nil
}

// Generate rebuilds the prompt text for the cache history plus req.Tokens
// and runs Predict; the prompt state file lets the library skip the
// evaluated prefix.
func (m *Model) Generate(ctx context.Context, req engine.Request, yield func(engine.Step) bool) (engine.Summary, error) {
	c, ok := req.Cache.(*cache)
	if !ok || c.owner != m {
		return engine.Summary{}, engine.ErrCacheOwner
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l == nil {
		return engine.Summary{}, errors.New("llama model not initialized")
	}
	full := append(append([]engine.Token(nil), c.tokens...), req.Tokens...)
	prompt, err := m.text(full)
	if err != nil {
		return engine.Summary{}, err
	}

	sum := engine.Summary{PromptTokens: len(req.Tokens), FinishReason: engine.FinishStop}
	var generated []engine.Token
	stopped := false
	m.l.SetTokenCallback(func(piece string) bool {
		if ctx.Err() != nil {
			return false
		}
		tok := m.pieces.intern(piece)
		generated = append(generated, tok)
		if !yield(engine.Step{Token: tok}) {
			stopped = true
			return false
		}
		return true
	})
	defer m.l.SetTokenCallback(nil)
	_, err = m.l.Predict(prompt, predictOptions(req.Options, m.cfg.Threads, c.path)...)
	sum.GeneratedTokens = len(generated)
	if err != nil {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return sum, err
	}
	if !stopped && req.Options.MaxTokens > 0 && len(generated) >= req.Options.MaxTokens {
		sum.FinishReason = engine.FinishLength
	}
	if len(generated) > 0 {
		generated = generated[:len(generated)-1]
	}
	c.tokens = append(full, generated...)
	return sum, ctx.Err()
}

// text reconstructs the prompt for tokens from remembered encodings and
// interned pieces.
func (m *Model) text(tokens []engine.Token) (string, error) {
	for i := len(tokens); i >= 0; i-- {
		head, ok := m.prompts.get(tokens[:i])
		if !ok {
			continue
		}
		var b strings.Builder
		b.WriteString(head)
		for _, t := range tokens[i:] {
			p, ok := m.pieces.piece(t)
			if !ok {
				return "", fmt.Errorf("token %d has no known text", t)
			}
			b.WriteString(p)
		}
		return b.String(), nil
	}
	return "", errors.New("prompt tokens were not produced by this model's tokenizer")
}

type tokenizer struct{ m *Model }

func (t tokenizer) Encode(_ context.Context, text string) ([]engine.Token, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.l == nil {
		return nil, errors.New("llama model not initialized")
	}
	_, ids, err := t.m.l.TokenizeString(text)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Token, len(ids))
	copy(out, ids)
	t.m.prompts.put(out, text)
	return out, nil
}

func (t tokenizer) Decode(_ context.Context, tokens []engine.Token) (string, error) {
	if s, ok := t.m.prompts.get(tokens); ok {
		return s, nil
	}
	var b strings.Builder
	for _, tok := range tokens {
		p, ok := t.m.pieces.piece(tok)
		if !ok {
			return "", fmt.Errorf("cannot decode vocabulary token %d", tok)
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// predictOptions converts sampling options into go-llama.cpp options.
func predictOptions(o engine.Options, threads int, cachePath string) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, o.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(float32(o.Temperature)),
		llama.SetPenalty(zf(o.RepetitionPenalty, llama.DefaultOptions.Penalty)),
		llama.SetPathPromptCache(cachePath),
		llama.EnablePromptCacheAll,
	}
	if o.Seed != 0 {
		po = append(po, llama.SetSeed(int(o.Seed)))
	}
	return po
}
