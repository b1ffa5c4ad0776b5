package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/engine"
	"omnid/internal/engine/enginetest"
	"omnid/internal/promptcache"
)

func userParams(text string) Params {
	return Params{
		Messages: []ChatMessage{{Role: "user", Content: text}},
		Options:  engine.Options{Temperature: 1, TopP: 1},
	}
}

func newOrchestrator() *Orchestrator { return NewOrchestrator(zerolog.Nop()) }

func complete(t *testing.T, m engine.Model, pool *promptcache.Pool, tmpl *Template, p Params) (Result, *RequestContext) {
	t.Helper()
	rc := NewRequestContext(m, pool)
	t.Cleanup(rc.Close)
	res, err := newOrchestrator().Complete(context.Background(), rc, tmpl, p)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return res, rc
}

func stream(t *testing.T, m engine.Model, tmpl *Template, p Params) (Result, []Delta) {
	t.Helper()
	rc := NewRequestContext(m, promptcache.NewPool(m, 1))
	defer rc.Close()
	var deltas []Delta
	res, err := newOrchestrator().Stream(context.Background(), rc, tmpl, p, func(d Delta) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return res, deltas
}

func joined(ds []Delta) string {
	var b strings.Builder
	for _, d := range ds {
		b.WriteString(d.Text)
	}
	return b.String()
}

func TestCompletePlainText(t *testing.T) {
	m := enginetest.Echo("m", "Hello world")
	tmpl := TemplateFor("chatml")
	res, rc := complete(t, m, nil, tmpl, userParams("hi"))
	if res.Text != "Hello world" || res.FinishReason != FinishStop {
		t.Fatalf("got %q finish=%s", res.Text, res.FinishReason)
	}
	if res.Message.Content == nil || *res.Message.Content != "Hello world" {
		t.Fatalf("content = %v", res.Message.Content)
	}
	prompt, _ := tmpl.Render(userParams("hi").Messages, nil, TemplateOptions{})
	if res.Usage.PromptTokens != len(prompt) || res.Usage.CompletionTokens != len("Hello world") {
		t.Fatalf("usage = %+v", res.Usage)
	}
	if !strings.HasPrefix(rc.ID, "chatcmpl-") || len(rc.ID) != len("chatcmpl-")+10 {
		t.Fatalf("id = %q", rc.ID)
	}
}

func TestCompleteDefaultsMaxTokens(t *testing.T) {
	m := enginetest.Echo("m", "x")
	complete(t, m, nil, TemplateFor("chatml"), userParams("hi"))
	if got := m.LastRequest().Options.MaxTokens; got != DefaultMaxTokens {
		t.Fatalf("max tokens = %d", got)
	}
}

func TestCompleteLengthFinish(t *testing.T) {
	m := enginetest.Echo("m", "Hello world")
	p := userParams("hi")
	p.Options.MaxTokens = 5
	res, _ := complete(t, m, nil, TemplateFor("chatml"), p)
	if res.Text != "Hello" || res.FinishReason != FinishLength || res.Usage.CompletionTokens != 5 {
		t.Fatalf("got %q %s %+v", res.Text, res.FinishReason, res.Usage)
	}
}

func TestStopPhraseIsTrimmedFromTextAndUsage(t *testing.T) {
	m := enginetest.Echo("m", "Hello world, again")
	p := userParams("hi")
	p.Stop = []string{"wor"}
	res, deltas := stream(t, m, TemplateFor("chatml"), p)
	if res.Text != "Hello " || res.FinishReason != FinishStop {
		t.Fatalf("got %q %s", res.Text, res.FinishReason)
	}
	if res.Usage.CompletionTokens != len("Hello ") {
		t.Fatalf("completion tokens = %d", res.Usage.CompletionTokens)
	}
	if joined(deltas) != res.Text {
		t.Fatalf("deltas %q != text %q", joined(deltas), res.Text)
	}
	for _, d := range deltas {
		if strings.Contains(d.Text, "w") {
			t.Fatalf("stop phrase prefix leaked in delta %q", d.Text)
		}
	}
}

func TestHeldBackTextIsFlushedWhenNoStopFollows(t *testing.T) {
	m := enginetest.Echo("m", "a</b")
	p := userParams("hi")
	p.Stop = []string{"</s>"}
	res, deltas := stream(t, m, TemplateFor("chatml"), p)
	if res.Text != "a</b" || joined(deltas) != "a</b" {
		t.Fatalf("text %q deltas %q", res.Text, joined(deltas))
	}
}

func TestStreamingSplitsMultiByteRunesCleanly(t *testing.T) {
	m := enginetest.Echo("m", "día €5")
	_, deltas := stream(t, m, TemplateFor("chatml"), userParams("hi"))
	for _, d := range deltas {
		if incompleteUTF8(d.Text) != 0 {
			t.Fatalf("delta ends mid-rune: %q", d.Text)
		}
	}
	if joined(deltas) != "día €5" {
		t.Fatalf("joined = %q", joined(deltas))
	}
}

func TestStreamingMatchesBuffered(t *testing.T) {
	replies := []struct {
		name   string
		family string
		reply  string
		tools  bool
		think  bool
	}{
		{name: "plain", family: "chatml", reply: "just text"},
		{name: "reasoning", family: "chatml", reply: "<think>\nconsider\n</think>\n\nanswer", think: true},
		{name: "prefilled reasoning", family: "deepseek", reply: "consider</think>answer", think: true},
		{name: "unterminated reasoning", family: "chatml", reply: "<think>never done", think: true},
		{name: "llama3 reasoning", family: "llama3", reply: "<think>consider</think>answer", think: true},
		{name: "hermes tool", family: "chatml", reply: "<tool_call>\n{\"name\": \"get_weather\", \"arguments\": {\"city\": \"Paris\"}}\n</tool_call>", tools: true},
		{name: "mistral tool", family: "mistral", reply: `[TOOL_CALLS] [{"name": "get_weather", "arguments": {"city": "Rome"}}]`, tools: true},
		{name: "tool text fallback", family: "chatml", reply: "<tool_call>{broken", tools: true},
	}
	for _, tc := range replies {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := TemplateFor(tc.family)
			p := userParams("weather?")
			p.Template.EnableThinking = tc.think
			if tc.tools {
				p.Tools = []Tool{{Name: "get_weather"}}
			}
			m := enginetest.Echo("m", tc.reply)
			buffered, _ := complete(t, m, nil, tmpl, p)
			streamed, deltas := stream(t, m, tmpl, p)

			rc := NewRequestContext(m, nil)
			g, err := newOrchestrator().Prepare(context.Background(), rc, tmpl, p)
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}
			var det ToolCallDetector
			if tc.tools {
				det = DetectorFor(tmpl.Grammar)
			}
			fromDeltas := Finalize(joined(deltas), rc.Reasoning, det, "", streamed.FinishReason)
			rc.Close()
			if g.State() != StatePreparing {
				t.Fatalf("state = %s", g.State())
			}

			for _, f := range []Final{streamed.Final, fromDeltas} {
				if f.FinishReason != buffered.FinishReason || f.Reasoning != buffered.Reasoning {
					t.Fatalf("finals differ: %+v vs %+v", f, buffered.Final)
				}
				if (f.Message.Content == nil) != (buffered.Message.Content == nil) {
					t.Fatalf("content presence differs")
				}
				if f.Message.Content != nil && *f.Message.Content != *buffered.Message.Content {
					t.Fatalf("content %q vs %q", *f.Message.Content, *buffered.Message.Content)
				}
				if len(f.Message.ToolCalls) != len(buffered.Message.ToolCalls) {
					t.Fatalf("tool calls differ")
				}
				for i, c := range f.Message.ToolCalls {
					b := buffered.Message.ToolCalls[i]
					if c.Name != b.Name || c.Arguments != b.Arguments || c.Index != b.Index {
						t.Fatalf("call %d: %+v vs %+v", i, c, b)
					}
				}
			}
		})
	}
}

func TestReasoningAndToolOutcomes(t *testing.T) {
	m := enginetest.Echo("m", "<think>\nplan\n</think>\n\nsunny")
	p := userParams("weather?")
	p.Template.EnableThinking = true
	res, _ := complete(t, m, nil, TemplateFor("chatml"), p)
	if res.Reasoning != "plan" || *res.Message.Content != "sunny" {
		t.Fatalf("got reasoning %q content %q", res.Reasoning, *res.Message.Content)
	}

	m = enginetest.Echo("m", `<tool_call>{"name": "get_weather", "arguments": {"city": "Paris"}}</tool_call>`)
	p = userParams("weather?")
	p.Tools = []Tool{{Name: "get_weather"}}
	res, _ = complete(t, m, nil, TemplateFor("chatml"), p)
	if res.FinishReason != FinishToolCalls || res.Message.Content != nil || len(res.Message.ToolCalls) != 1 {
		t.Fatalf("got %+v", res.Final)
	}
	if res.Message.ToolCalls[0].Arguments != `{"city":"Paris"}` {
		t.Fatalf("arguments = %q", res.Message.ToolCalls[0].Arguments)
	}
}

func TestReasoningExtractedForEveryFamily(t *testing.T) {
	for _, family := range []string{"llama3", "mistral", "gemma"} {
		m := enginetest.Echo("m", "<think>plan</think>answer")
		p := userParams("q")
		p.Template.EnableThinking = true
		res, rc := complete(t, m, nil, TemplateFor(family), p)
		if res.Reasoning != "plan" || *res.Message.Content != "answer" {
			t.Fatalf("%s: reasoning %q content %q", family, res.Reasoning, *res.Message.Content)
		}
		if rc.Reasoning.Prefilled {
			t.Fatalf("%s: prompt does not open a block", family)
		}

		p.Template.EnableThinking = false
		res, _ = complete(t, m, nil, TemplateFor(family), p)
		if res.Reasoning != "" || *res.Message.Content != "<think>plan</think>answer" {
			t.Fatalf("%s: disabled thinking changed text: %+v", family, res.Final)
		}
	}
}

func TestToolsDisabledSkipsParsing(t *testing.T) {
	reply := `<tool_call>{"name": "get_weather", "arguments": {}}</tool_call>`
	m := enginetest.Echo("m", reply)
	p := userParams("weather?")
	p.Tools = []Tool{{Name: "get_weather"}}
	p.ToolsDisabled = true
	res, _ := complete(t, m, nil, TemplateFor("chatml"), p)
	if res.FinishReason != FinishStop || *res.Message.Content != reply {
		t.Fatalf("got %+v", res.Final)
	}
}

func TestNamedToolChoicePrefillsPrompt(t *testing.T) {
	m := enginetest.Echo("m", ` {"city": "Paris"}}</tool_call>`)
	p := userParams("weather?")
	p.Tools = []Tool{{Name: "get_weather"}, {Name: "other"}}
	p.Template.ToolChoice = "get_weather"
	rc := NewRequestContext(m, nil)
	defer rc.Close()
	g, err := newOrchestrator().Prepare(context.Background(), rc, TemplateFor("chatml"), p)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.HasSuffix(g.Prompt(), DetectorFor(GrammarHermes).Prefill("get_weather")) {
		t.Fatalf("prompt missing prefill: %q", g.Prompt())
	}
	res, err := g.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if g.State() != StateDone {
		t.Fatalf("state = %s", g.State())
	}
	if res.FinishReason != FinishToolCalls || res.Message.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("got %+v", res.Final)
	}
	if _, err := g.Run(context.Background(), nil); err == nil {
		t.Fatalf("second run should fail")
	}
}

func TestUnknownToolChoiceIsValidationError(t *testing.T) {
	p := userParams("x")
	p.Tools = []Tool{{Name: "a"}}
	p.Template.ToolChoice = "b"
	rc := NewRequestContext(enginetest.Echo("m", "x"), nil)
	defer rc.Close()
	_, err := newOrchestrator().Prepare(context.Background(), rc, TemplateFor("chatml"), p)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogprobsAlignWithCompletionTokens(t *testing.T) {
	m := enginetest.Echo("m", "Hello world")
	p := userParams("hi")
	p.Logprobs = true
	p.TopLogprobs = 2
	p.Stop = []string{"ld"}
	res, deltas := stream(t, m, TemplateFor("chatml"), p)
	if len(res.Logprobs) != res.Usage.CompletionTokens {
		t.Fatalf("logprobs %d vs tokens %d", len(res.Logprobs), res.Usage.CompletionTokens)
	}
	for _, lp := range res.Logprobs {
		if len(lp.Top) != 2 || lp.Top[0].Token != lp.Token {
			t.Fatalf("top = %+v", lp)
		}
	}
	n := 0
	for _, d := range deltas {
		n += len(d.Logprobs)
	}
	if n != len(res.Logprobs) {
		t.Fatalf("streamed %d logprob entries, want %d", n, len(res.Logprobs))
	}
	if got := m.LastRequest().Options.TopLogprobs; got != 2 {
		t.Fatalf("runtime top logprobs = %d", got)
	}
}

func TestStreamedLogprobsExcludeTrimmedTokens(t *testing.T) {
	m := enginetest.Echo("m", "aaab")
	p := userParams("hi")
	p.Logprobs = true
	p.Stop = []string{"aab"}
	buffered, _ := complete(t, m, nil, TemplateFor("chatml"), p)
	streamed, deltas := stream(t, m, TemplateFor("chatml"), p)
	if buffered.Text != "a" || streamed.Text != "a" {
		t.Fatalf("text %q / %q", buffered.Text, streamed.Text)
	}
	var lps []TokenLogprob
	var toks int
	for _, d := range deltas {
		lps = append(lps, d.Logprobs...)
		toks += len(d.Tokens)
	}
	if len(lps) != len(buffered.Logprobs) || toks != buffered.Usage.CompletionTokens {
		t.Fatalf("streamed %d logprobs / %d tokens, buffered %d / %d",
			len(lps), toks, len(buffered.Logprobs), buffered.Usage.CompletionTokens)
	}
	for i := range lps {
		if lps[i].Token != buffered.Logprobs[i].Token {
			t.Fatalf("logprob %d: %q vs %q", i, lps[i].Token, buffered.Logprobs[i].Token)
		}
	}
}

func TestRuntimeErrorDiscardsCache(t *testing.T) {
	boom := errors.New("boom")
	m := &enginetest.Model{Name: "m", Reply: func(string) string { return "abcdef" }, FailAfter: 3, Err: boom}
	pool := promptcache.NewPool(m, 2)
	rc := NewRequestContext(m, pool)
	var got string
	_, err := newOrchestrator().Stream(context.Background(), rc, TemplateFor("chatml"), userParams("hi"), func(d Delta) error {
		got += d.Text
		return nil
	})
	if !IsGeneration(err) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got != "abc" {
		t.Fatalf("streamed before failure = %q", got)
	}
	rc.Close()
	if pool.Idle() != 0 {
		t.Fatalf("failed cache returned to pool")
	}
}

func TestCancellationStopsGeneration(t *testing.T) {
	m := &enginetest.Model{Name: "m", Reply: func(string) string { return "abcdefghijklmnop" }, Delay: 2 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rc := NewRequestContext(m, nil)
	defer rc.Close()
	var n int
	_, err := newOrchestrator().Stream(ctx, rc, TemplateFor("chatml"), userParams("hi"), func(Delta) error {
		n++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if n != 1 {
		t.Fatalf("emitted %d deltas after cancel", n)
	}
}

func TestEmitErrorAbortsGeneration(t *testing.T) {
	m := enginetest.Echo("m", "abcdef")
	rc := NewRequestContext(m, nil)
	defer rc.Close()
	sinkErr := errors.New("client gone")
	_, err := newOrchestrator().Stream(context.Background(), rc, TemplateFor("chatml"), userParams("hi"), func(Delta) error {
		return sinkErr
	})
	if !errors.Is(err, sinkErr) || IsGeneration(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestPromptCacheReuseAcrossTurns(t *testing.T) {
	countingReply := func(ctx string) string { return fmt.Sprintf("n=%d", len(ctx)) }
	pooled := &enginetest.Model{Name: "m", Reply: countingReply}
	fresh := &enginetest.Model{Name: "m", Reply: countingReply}
	pool := promptcache.NewPool(pooled, 2)
	tmpl := TemplateFor("chatml")

	first, rc1 := complete(t, pooled, pool, tmpl, userParams("hello"))
	rc1.Close()
	if first.Usage.CachedTokens != 0 {
		t.Fatalf("first turn cached = %d", first.Usage.CachedTokens)
	}

	next := userParams("hello")
	next.Messages = append(next.Messages,
		ChatMessage{Role: "assistant", Content: first.Text},
		ChatMessage{Role: "user", Content: "and again"},
	)
	reused, _ := complete(t, pooled, pool, tmpl, next)
	baseline, _ := complete(t, fresh, nil, tmpl, next)

	if reused.Usage.CachedTokens == 0 {
		t.Fatalf("second turn reused nothing")
	}
	if reused.Text != baseline.Text {
		t.Fatalf("cached output %q differs from uncached %q", reused.Text, baseline.Text)
	}
	if reused.Usage.PromptTokens != baseline.Usage.PromptTokens {
		t.Fatalf("prompt tokens %d vs %d", reused.Usage.PromptTokens, baseline.Usage.PromptTokens)
	}
	if evaluated := len(pooled.LastRequest().Tokens); evaluated != reused.Usage.PromptTokens-reused.Usage.CachedTokens {
		t.Fatalf("evaluated %d tokens", evaluated)
	}
}
