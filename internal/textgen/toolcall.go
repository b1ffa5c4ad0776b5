package textgen

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ToolCall is one parsed function invocation.
type ToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Message is the parsed assistant turn. Content is nil when the whole turn
// was tool calls.
type Message struct {
	Content   *string
	ToolCalls []ToolCall
}

// Grammar names a model family's tool-call text encoding.
type Grammar string

const (
	// GrammarHermes wraps each call in <tool_call>{json}</tool_call>.
	GrammarHermes Grammar = "hermes"
	// GrammarMistral emits [TOOL_CALLS] followed by a JSON array of calls.
	GrammarMistral Grammar = "mistral"
)

// ToolCallDetector parses one grammar. Detection failure is not an error:
// ok is false and the message carries the original text as content.
type ToolCallDetector interface {
	Grammar() Grammar
	// Prefill is appended to the prompt to force a call to function.
	Prefill(function string) string
	// Detect parses prefill+text.
	Detect(prefill, text string) (msg Message, ok bool)
}

// DetectorFor returns the detector for g, defaulting to Hermes.
func DetectorFor(g Grammar) ToolCallDetector {
	switch g {
	case GrammarMistral:
		return mistralDetector{}
	default:
		return hermesDetector{}
	}
}

type rawCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

func (c rawCall) args() json.RawMessage {
	if len(c.Arguments) > 0 {
		return c.Arguments
	}
	return c.Parameters
}

// normalizeArguments returns a JSON object string. Missing or null
// arguments become "{}", a string holding JSON is unwrapped, a string
// holding anything else becomes "{}".
func normalizeArguments(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "null" || !json.Valid([]byte(s)) {
			return "{}"
		}
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "{}"
	}
	return buf.String()
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func buildCalls(raws []rawCall) []ToolCall {
	var calls []ToolCall
	for _, rc := range raws {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, ToolCall{
			Index:     len(calls),
			ID:        newCallID(),
			Name:      rc.Name,
			Arguments: normalizeArguments(rc.args()),
		})
	}
	return calls
}

func plain(text string) Message { return Message{Content: &text} }

type hermesDetector struct{}

const (
	hermesOpen  = "<tool_call>"
	hermesClose = "</tool_call>"
)

func (hermesDetector) Grammar() Grammar { return GrammarHermes }

func (hermesDetector) Prefill(function string) string {
	if function == "" {
		return ""
	}
	b, _ := json.Marshal(function)
	return hermesOpen + "\n{\"name\": " + string(b) + ", \"arguments\":"
}

func (hermesDetector) Detect(prefill, text string) (Message, bool) {
	full := prefill + text
	var (
		raws    []rawCall
		outside strings.Builder
		pos     int
	)
	for {
		i := strings.Index(full[pos:], hermesOpen)
		if i < 0 {
			outside.WriteString(full[pos:])
			break
		}
		outside.WriteString(full[pos : pos+i])
		body := full[pos+i+len(hermesOpen):]
		end := strings.Index(body, hermesClose)
		next := len(full)
		if end >= 0 {
			next = pos + i + len(hermesOpen) + end + len(hermesClose)
			body = body[:end]
		}
		var rc rawCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &rc); err != nil {
			return plain(text), false
		}
		raws = append(raws, rc)
		pos = next
	}
	calls := buildCalls(raws)
	if len(calls) == 0 {
		return plain(text), false
	}
	msg := Message{ToolCalls: calls}
	if rest := strings.TrimSpace(outside.String()); rest != "" {
		msg.Content = &rest
	}
	return msg, true
}

type mistralDetector struct{}

const mistralMarker = "[TOOL_CALLS]"

func (mistralDetector) Grammar() Grammar { return GrammarMistral }

func (mistralDetector) Prefill(string) string { return "" }

func (mistralDetector) Detect(prefill, text string) (Message, bool) {
	full := strings.TrimSpace(prefill + text)
	if !strings.HasPrefix(full, mistralMarker) {
		return plain(text), false
	}
	body := strings.TrimSpace(full[len(mistralMarker):])
	var raws []rawCall
	switch {
	case strings.HasPrefix(body, "["):
		if err := json.Unmarshal([]byte(body), &raws); err != nil {
			return plain(text), false
		}
	case strings.HasPrefix(body, "{"):
		var rc rawCall
		if err := json.Unmarshal([]byte(body), &rc); err != nil {
			return plain(text), false
		}
		raws = []rawCall{rc}
	default:
		return plain(text), false
	}
	calls := buildCalls(raws)
	if len(calls) == 0 {
		return plain(text), false
	}
	return Message{ToolCalls: calls}, true
}
