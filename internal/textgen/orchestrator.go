package textgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/engine"
)

// State is a step of the per-request generation state machine.
type State string

const (
	StatePreparing  State = "preparing"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// Finish reasons reported to clients.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// TopLogprob is an alternative token at one position.
type TopLogprob struct {
	Token   string
	Logprob float64
	Bytes   []byte
}

// TokenLogprob is log-probability detail for one generated token.
type TokenLogprob struct {
	Token   string
	Logprob float64
	Bytes   []byte
	Top     []TopLogprob
}

// Delta is one streamed emission: the text decoded since the previous
// emission plus the tokens and log probabilities that produced it.
type Delta struct {
	Text     string
	Tokens   []engine.Token
	Logprobs []TokenLogprob
}

// Usage is token accounting for one generation.
type Usage struct {
	// PromptTokens counts evaluated plus cached prompt tokens.
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Final is the outcome of finalization over the complete text.
type Final struct {
	Message      Message
	Reasoning    string
	FinishReason string
}

// Result is everything a presentation needs after DONE.
type Result struct {
	Final
	// Text is the raw visible text: everything streamed as deltas.
	Text     string
	Logprobs []TokenLogprob
	Usage    Usage
}

// Finalize turns the complete raw text into the final message. It is the
// single place reasoning and tool calls are resolved, shared by buffered and
// streaming presentations. A detected tool call overrides finish.
func Finalize(text string, r ReasoningExtractor, det ToolCallDetector, prefill, finish string) Final {
	split, _ := r.Extract(text)
	f := Final{Reasoning: split.Reasoning, FinishReason: finish}
	content := split.Content
	if det != nil {
		if msg, ok := det.Detect(prefill, content); ok {
			f.Message = msg
			f.FinishReason = FinishToolCalls
			return f
		}
	}
	f.Message = Message{Content: &content}
	return f
}

// Orchestrator drives generations. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	log zerolog.Logger
}

// NewOrchestrator returns an orchestrator logging to log.
func NewOrchestrator(log zerolog.Logger) *Orchestrator {
	return &Orchestrator{log: log}
}

// Generation is one prepared request moving through the state machine.
type Generation struct {
	o        *Orchestrator
	rc       *RequestContext
	params   Params
	state    State
	prompt   string
	prefill  string
	suffix   []engine.Token
	stop     *StopMatcher
	detector ToolCallDetector
	started  time.Time
}

// State returns the current state.
func (g *Generation) State() State { return g.state }

// Prompt returns the rendered prompt text including any tool prefill.
func (g *Generation) Prompt() string { return g.prompt }

// Prepare renders and tokenizes the prompt, configures reasoning
// extraction, reconciles the prompt cache and builds the stop matcher.
func (o *Orchestrator) Prepare(ctx context.Context, rc *RequestContext, tmpl *Template, p Params) (*Generation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &Generation{o: o, rc: rc, params: p, state: StatePreparing}
	var tools []Tool
	if p.OffersTools() {
		tools = p.Tools
		g.detector = DetectorFor(tmpl.Grammar)
		g.prefill = g.detector.Prefill(p.Template.ToolChoice)
	}
	prompt, err := tmpl.Render(p.Messages, tools, p.Template)
	if err != nil {
		return nil, ErrValidation("%v", err)
	}
	g.prompt = prompt + g.prefill
	// any family may emit <think> blocks; only some prompts open one
	rc.Reasoning = NewReasoningExtractor(p.Template.EnableThinking, g.prompt)
	rc.Reasoning.Prefilled = rc.Reasoning.Prefilled && tmpl.Thinking

	tok := rc.Model.Tokenizer()
	tokens, err := tok.Encode(ctx, g.prompt)
	if err != nil {
		return nil, fmt.Errorf("tokenize prompt: %w", err)
	}
	if len(tokens) == 0 {
		return nil, ErrValidation("prompt is empty after templating")
	}
	cache := rc.checkout(tokens)
	g.suffix, err = cache.Reconcile(rc.Model, tokens)
	if err != nil {
		rc.fail()
		return nil, fmt.Errorf("prompt cache: %w", err)
	}
	g.stop = NewStopMatcher(tok, p.Stop)
	o.log.Debug().
		Str("request_id", rc.ID).
		Str("model", rc.Model.ID()).
		Int("prompt_tokens", len(tokens)).
		Int("cached_tokens", cache.CachedTokens()).
		Bool("cache_rebuilt", cache.Rebuilt()).
		Bool("reasoning_prefilled", rc.Reasoning.Prefilled).
		Msg("generation prepared")
	return g, nil
}

// Run drives the runtime and finalizes. emit receives every non-empty
// delta in generation order; it may be nil. Text that could still turn
// into a stop phrase, or that ends inside a UTF-8 sequence, is held back
// until it is resolved, so the concatenated deltas always equal Result.Text.
func (g *Generation) Run(ctx context.Context, emit func(Delta) error) (Result, error) {
	if g.state != StatePreparing {
		return Result{}, errors.New("generation already ran")
	}
	g.state = StateStreaming
	g.started = time.Now()
	rc, p := g.rc, g.params
	modelID := rc.Model.ID()
	tok := rc.Model.Tokenizer()

	var (
		history    []engine.Token
		all        []TokenLogprob
		pendingLP  []TokenLogprob
		pendingTok []engine.Token
		pendingEnd []int // decoded length once each pending token was added
		text       string
		emitted    int
		stopped    bool
		stepErr    error
	)
	req := engine.Request{Cache: rc.Cache.State(), Tokens: g.suffix, Options: p.Options}
	sum, genErr := rc.Model.Generate(ctx, req, func(s engine.Step) bool {
		if ctx.Err() != nil {
			return false
		}
		history = append(history, s.Token)
		pendingTok = append(pendingTok, s.Token)
		if p.Logprobs {
			lp, err := g.logprob(ctx, tok, s)
			if err != nil {
				stepErr = err
				return false
			}
			all = append(all, lp)
			pendingLP = append(pendingLP, lp)
		}
		cond, err := g.stop.Check(ctx, history)
		if err != nil {
			stepErr = err
			return false
		}
		visible := cond.Text
		pendingEnd = append(pendingEnd, len(visible))
		safe := len(visible)
		if cond.Stop {
			stopped = true
			history = history[:len(history)-cond.Trim]
			visible = visible[:cond.Index]
			safe = len(visible)
		} else {
			safe -= max(g.stop.Holdback(visible), incompleteUTF8(visible))
		}
		text = visible
		if safe > emitted {
			// a token travels with the delta that completes its text, so
			// tokens later trimmed by a stop phrase are never streamed
			n := 0
			for n < len(pendingEnd) && pendingEnd[n] <= safe {
				n++
			}
			d := Delta{Text: visible[emitted:safe], Tokens: pendingTok[:n:n]}
			if p.Logprobs {
				d.Logprobs = pendingLP[:n:n]
				pendingLP = pendingLP[n:]
			}
			pendingTok, pendingEnd = pendingTok[n:], pendingEnd[n:]
			emitted = safe
			if emit != nil {
				if err := emit(d); err != nil {
					stepErr = err
					return false
				}
			}
		}
		return !stopped
	})
	if err := firstErr(stepErr, ctx.Err(), genErr); err != nil {
		rc.fail()
		rc.Cache.Reset()
		reason := "runtime"
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			reason = "canceled"
		}
		generationFailures.WithLabelValues(modelID, reason).Inc()
		if err == genErr && ctx.Err() == nil {
			return Result{}, &GenerationError{Cause: err}
		}
		return Result{}, err
	}
	if len(text) > emitted && emit != nil {
		if err := emit(Delta{Text: text[emitted:], Tokens: pendingTok, Logprobs: pendingLP}); err != nil {
			rc.fail()
			rc.Cache.Reset()
			return Result{}, err
		}
	}
	if len(all) > len(history) {
		all = all[:len(history)]
	}

	g.state = StateFinalizing
	finish := sum.FinishReason
	if stopped || finish == "" {
		finish = FinishStop
	}
	final := Finalize(text, rc.Reasoning, g.detector, g.prefill, finish)
	if g.detector != nil && final.FinishReason != FinishToolCalls {
		g.o.log.Debug().Str("request_id", rc.ID).Str("grammar", string(g.detector.Grammar())).Msg("no tool call parsed; returning text")
	}

	g.state = StateDone
	rc.CachedTokens = rc.Cache.CachedTokens()
	if err := rc.Cache.Extend(history); err != nil {
		g.o.log.Warn().Err(err).Str("request_id", rc.ID).Msg("prompt cache extend failed; cache dropped")
		rc.fail()
	}
	res := Result{
		Final:    final,
		Text:     text,
		Logprobs: all,
		Usage: Usage{
			PromptTokens:     sum.PromptTokens + rc.CachedTokens,
			CompletionTokens: len(history),
			CachedTokens:     rc.CachedTokens,
		},
	}
	tokensGenerated.WithLabelValues(modelID).Add(float64(len(history)))
	promptTokens.WithLabelValues(modelID, "evaluated").Add(float64(sum.PromptTokens))
	promptTokens.WithLabelValues(modelID, "cached").Add(float64(rc.CachedTokens))
	generationDuration.WithLabelValues(modelID, final.FinishReason).Observe(time.Since(g.started).Seconds())
	return res, nil
}

// Complete is the buffered presentation: it drains the state machine and
// returns the assembled result.
func (o *Orchestrator) Complete(ctx context.Context, rc *RequestContext, tmpl *Template, p Params) (Result, error) {
	g, err := o.Prepare(ctx, rc, tmpl, p)
	if err != nil {
		return Result{}, err
	}
	return g.Run(ctx, nil)
}

// Stream is the incremental presentation: emit sees each content delta and
// the returned result carries what only finalization can know.
func (o *Orchestrator) Stream(ctx context.Context, rc *RequestContext, tmpl *Template, p Params, emit func(Delta) error) (Result, error) {
	g, err := o.Prepare(ctx, rc, tmpl, p)
	if err != nil {
		return Result{}, err
	}
	return g.Run(ctx, emit)
}

func (g *Generation) logprob(ctx context.Context, tok engine.Tokenizer, s engine.Step) (TokenLogprob, error) {
	piece, err := tok.Decode(ctx, []engine.Token{s.Token})
	if err != nil {
		return TokenLogprob{}, err
	}
	lp := TokenLogprob{Token: piece, Logprob: s.Logprob, Bytes: []byte(piece), Top: []TopLogprob{}}
	for i, c := range s.Top {
		if i >= g.params.TopLogprobs {
			break
		}
		alt, err := tok.Decode(ctx, []engine.Token{c.Token})
		if err != nil {
			return TokenLogprob{}, err
		}
		lp.Top = append(lp.Top, TopLogprob{Token: alt, Logprob: c.Logprob, Bytes: []byte(alt)})
	}
	return lp, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
