// Package chat adapts OpenAI chat-completion requests to the generation
// orchestrator and projects its results back onto the wire types.
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/manager"
	"omnid/internal/textgen"
	"omnid/pkg/types"
)

// Acquirer hands out exclusive use of a loaded model.
type Acquirer interface {
	Acquire(ctx context.Context, modelID, adapterPath string) (*manager.Lease, error)
}

// Service serves chat completions in buffered and streamed form.
type Service struct {
	models Acquirer
	orch   *textgen.Orchestrator
	log    zerolog.Logger
	now    func() time.Time
}

// NewService returns a chat service backed by models.
func NewService(models Acquirer, log zerolog.Logger) *Service {
	return &Service{models: models, orch: textgen.NewOrchestrator(log), log: log, now: time.Now}
}

// call is one prepared request holding a model lease and a prompt cache.
type call struct {
	req     types.ChatCompletionRequest
	params  textgen.Params
	lease   *manager.Lease
	rc      *textgen.RequestContext
	gen     *textgen.Generation
	created int64
}

func (c *call) close() {
	c.rc.Close()
	c.lease.Release()
}

// prepare validates req, admits it on its model and prepares generation.
// Every error it returns happens before any output is produced.
func (s *Service) prepare(ctx context.Context, req types.ChatCompletionRequest) (*call, error) {
	p, extra, err := ParseRequest(req)
	if err != nil {
		return nil, err
	}
	if len(extra.Ignored) > 0 {
		s.log.Debug().Strs("fields", extra.Ignored).Str("model", req.Model).Msg("ignoring unknown request fields")
	}
	lease, err := s.models.Acquire(ctx, req.Model, p.AdapterPath)
	if err != nil {
		return nil, err
	}
	rc := textgen.NewRequestContext(lease.Model, lease.Caches)
	c := &call{req: req, params: p, lease: lease, rc: rc, created: s.now().Unix()}
	c.gen, err = s.orch.Prepare(ctx, rc, textgen.TemplateFor(lease.Family), p)
	if err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

// Complete runs a buffered completion.
func (s *Service) Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	c, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer c.close()
	res, err := c.gen.Run(ctx, nil)
	if err != nil {
		return nil, err
	}
	choice := types.ChatCompletionChoice{
		Message: types.ResponseMessage{
			Role:      "assistant",
			Content:   res.Message.Content,
			Reasoning: res.Reasoning,
			ToolCalls: wireCalls(res.Message.ToolCalls, false),
		},
		FinishReason: res.FinishReason,
	}
	if c.params.Logprobs {
		choice.Logprobs = wireLogprobs(res.Logprobs)
	}
	return &types.ChatCompletionResponse{
		ID:                c.rc.ID,
		Object:            "chat.completion",
		Created:           c.created,
		Model:             req.Model,
		SystemFingerprint: req.Model,
		Choices:           []types.ChatCompletionChoice{choice},
		Usage:             wireUsage(res.Usage),
	}, nil
}

// Stream runs a streamed completion, passing each chunk to sink in order.
// An error returned before sink is first called means nothing was sent;
// later errors are generation or sink failures the caller reports in band.
// The caller writes the terminating [DONE] frame.
func (s *Service) Stream(ctx context.Context, req types.ChatCompletionRequest, sink func(types.ChatCompletionChunk) error) error {
	c, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}
	defer c.close()

	chunk := func(d types.ChatDelta, finish *string, lp *types.ChoiceLogprobs) types.ChatCompletionChunk {
		return types.ChatCompletionChunk{
			ID:                c.rc.ID,
			Object:            "chat.completion.chunk",
			Created:           s.now().Unix(),
			Model:             req.Model,
			SystemFingerprint: req.Model,
			Choices:           []types.ChunkChoice{{Delta: d, FinishReason: finish, Logprobs: lp}},
		}
	}
	empty := ""
	if err := sink(chunk(types.ChatDelta{Role: "assistant", Content: &empty}, nil, nil)); err != nil {
		return err
	}
	res, err := c.gen.Run(ctx, func(d textgen.Delta) error {
		text := d.Text
		var lp *types.ChoiceLogprobs
		if c.params.Logprobs {
			lp = wireLogprobs(d.Logprobs)
		}
		return sink(chunk(types.ChatDelta{Role: "assistant", Content: &text}, nil, lp))
	})
	if err != nil {
		return err
	}
	final := types.ChatDelta{
		Reasoning: res.Reasoning,
		ToolCalls: wireCalls(res.Message.ToolCalls, true),
	}
	finish := res.FinishReason
	if err := sink(chunk(final, &finish, nil)); err != nil {
		return err
	}
	if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		u := chunk(types.ChatDelta{}, nil, nil)
		u.Usage = wireUsage(res.Usage)
		if err := sink(u); err != nil {
			return err
		}
	}
	s.log.Debug().
		Str("request_id", c.rc.ID).
		Str("finish_reason", finish).
		Int("completion_tokens", res.Usage.CompletionTokens).
		Msg("stream finished")
	return nil
}

func wireCalls(calls []textgen.ToolCall, indexed bool) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = types.ToolCall{
			ID:       c.ID,
			Type:     "function",
			Function: types.FunctionCall{Name: c.Name, Arguments: c.Arguments},
		}
		if indexed {
			idx := i
			out[i].Index = &idx
		}
	}
	return out
}

func wireUsage(u textgen.Usage) *types.Usage {
	out := &types.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
	}
	if u.CachedTokens > 0 {
		out.PromptTokensDetails = &types.PromptTokensDetails{CachedTokens: u.CachedTokens}
	}
	return out
}

func wireLogprobs(lps []textgen.TokenLogprob) *types.ChoiceLogprobs {
	out := &types.ChoiceLogprobs{Content: make([]types.TokenLogprob, 0, len(lps))}
	for _, lp := range lps {
		t := types.TokenLogprob{
			Token:       lp.Token,
			Logprob:     lp.Logprob,
			Bytes:       byteInts(lp.Bytes),
			TopLogprobs: make([]types.TopLogprob, 0, len(lp.Top)),
		}
		for _, alt := range lp.Top {
			t.TopLogprobs = append(t.TopLogprobs, types.TopLogprob{Token: alt.Token, Logprob: alt.Logprob, Bytes: byteInts(alt.Bytes)})
		}
		out.Content = append(out.Content, t)
	}
	return out
}

func byteInts(b []byte) []int {
	out := make([]int, len(b))
	for i, c := range b {
		out[i] = int(c)
	}
	return out
}
