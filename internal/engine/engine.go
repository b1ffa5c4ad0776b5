// Package engine defines the boundary between the serving core and a native
// inference runtime. A runtime turns a token sequence plus sampling options
// into a token stream; everything above this package (prompt caching, stop
// handling, reasoning and tool-call parsing) is runtime agnostic.
package engine

import (
	"context"
	"encoding/json"
)

// Token is the atomic unit produced by a runtime and stored in its cache.
type Token = int32

// Finish reasons reported by a runtime in Summary.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Tokenizer converts between text and tokens for one loaded model.
// Decode must be applied to a whole token history: pieces are not stable
// under concatenation and a single token may carry a partial UTF-8 sequence.
type Tokenizer interface {
	Encode(ctx context.Context, text string) ([]Token, error)
	Decode(ctx context.Context, tokens []Token) (string, error)
}

// Cache is runtime side attention state for a single token sequence.
// Implementations are not safe for concurrent use.
type Cache interface {
	// Len returns how many tokens the state currently represents.
	Len() int
	// Trim discards state beyond the first n tokens.
	Trim(n int) error
	// Valid reports whether the state is still owned by this cache. A runtime
	// may reclaim it (process restart, slot reuse) and the caller must rebuild.
	Valid() bool
	Close() error
}

// Options carries sampling and structural constraints for one generation.
type Options struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	MinP              float64
	// MinKeep is the minimum number of candidates samplers must leave.
	MinKeep           int
	XTCProbability    float64
	XTCThreshold      float64
	RepetitionPenalty float64
	FrequencyPenalty  float64
	PresencePenalty   float64
	Seed              int64
	LogitBias         map[Token]float64
	// JSONSchema constrains output to the given schema when the runtime supports it.
	JSONSchema json.RawMessage
	// TopLogprobs > 0 requests per-token log-probability detail.
	TopLogprobs int
}

// Request is one generation call. Tokens are evaluated on top of Cache,
// which the runtime advances with everything it evaluates.
type Request struct {
	Cache   Cache
	Tokens  []Token
	Options Options
}

// Candidate is one entry in a top-k log-probability list.
type Candidate struct {
	Token   Token
	Logprob float64
}

// Step is a single generated token.
type Step struct {
	Token   Token
	Logprob float64
	Top     []Candidate
}

// Summary is returned once the runtime stops producing tokens.
type Summary struct {
	FinishReason    string
	PromptTokens    int
	GeneratedTokens int
}

// Model is a loaded, shared model handle. Generate is not reentrant for
// runtimes that own a single native context; callers serialize per model.
type Model interface {
	ID() string
	Tokenizer() Tokenizer
	NewCache() (Cache, error)
	// Generate evaluates req.Tokens and streams sampled tokens to yield until
	// an end-of-generation token, the token limit, cancellation or yield
	// returning false. End-of-generation tokens are not yielded.
	Generate(ctx context.Context, req Request, yield func(Step) bool) (Summary, error)
	Close() error
}

// LoadSpec identifies what to load.
type LoadSpec struct {
	ID          string
	Path        string
	AdapterPath string
	Family      string
}

// Loader creates model handles. Load may be slow; the manager calls it at
// most once per key at a time.
type Loader interface {
	Load(ctx context.Context, spec LoadSpec) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec LoadSpec) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, spec LoadSpec) (Model, error) { return f(ctx, spec) }
