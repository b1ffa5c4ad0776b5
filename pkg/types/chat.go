package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Fields not listed here are kept in Extra and routed to the sampler, the
// model loader or the chat template.
type ChatCompletionRequest struct {
	// Model identifier as listed by GET /v1/models.
	// example: qwen3-4b-q4_k_m
	Model string `json:"model" example:"qwen3-4b-q4_k_m"`
	// Conversation so far.
	Messages []ChatMessage `json:"messages"`
	// Functions the model may call.
	Tools []Tool `json:"tools,omitempty"`
	// "none", "auto", "required" or {"type":"function","function":{"name":...}}.
	ToolChoice json.RawMessage `json:"tool_choice,omitempty" swaggertype:"object"`
	// Stream the response as server-sent events.
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
	// Sampling temperature.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Maximum number of tokens to generate.
	// example: 256
	MaxTokens *int `json:"max_tokens,omitempty" example:"256"`
	// Newer alias of max_tokens.
	MaxCompletionTokens *int `json:"max_completion_tokens,omitempty"`
	// Stop phrases (a string or a list of strings).
	Stop StopList `json:"stop,omitempty" swaggertype:"array,string"`
	// Return per-token log probabilities.
	Logprobs bool `json:"logprobs,omitempty"`
	// Number of alternatives per token when logprobs is set.
	// example: 5
	TopLogprobs *int `json:"top_logprobs,omitempty" example:"5"`
	// Output constraint; json_schema restricts generation to the schema.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	// Streaming options.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	// Random seed.
	Seed *int64 `json:"seed,omitempty"`
	// Frequency penalty.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	// Presence penalty.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	// Token id (as string) to bias.
	LogitBias map[string]float64 `json:"logit_bias,omitempty"`
	// End-user identifier, ignored.
	User string `json:"user,omitempty"`

	// Extra holds every field not declared above.
	Extra map[string]json.RawMessage `json:"-" swaggerignore:"true"`
}

var knownRequestFields = map[string]struct{}{
	"model": {}, "messages": {}, "tools": {}, "tool_choice": {}, "stream": {},
	"temperature": {}, "top_p": {}, "max_tokens": {}, "max_completion_tokens": {},
	"stop": {}, "logprobs": {}, "top_logprobs": {}, "response_format": {},
	"stream_options": {}, "seed": {}, "frequency_penalty": {}, "presence_penalty": {},
	"logit_bias": {}, "user": {}, "n": {},
}

// UnmarshalJSON decodes declared fields and collects the rest into Extra.
func (r *ChatCompletionRequest) UnmarshalJSON(b []byte) error {
	type plain ChatCompletionRequest
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k := range knownRequestFields {
		delete(all, k)
	}
	*r = ChatCompletionRequest(p)
	if len(all) > 0 {
		r.Extra = all
	}
	return nil
}

// StopList accepts either a single string or a list of strings.
type StopList []string

func (s *StopList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = StopList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("stop must be a string or a list of strings")
	}
	*s = many
	return nil
}

// ChatMessage is one request message.
type ChatMessage struct {
	// system, developer, user, assistant or tool.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text; content-part arrays are flattened to their text parts.
	// example: What's the weather like in Boston?
	Content MessageContent `json:"content" swaggertype:"string" example:"What's the weather like in Boston?"`
	Name    string         `json:"name,omitempty"`
	// Calls made by a previous assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Call this tool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// MessageContent is a string or an array of {"type":"text","text":...} parts.
type MessageContent string

func (c *MessageContent) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*c = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = MessageContent(s)
		return nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts")
	}
	var buf bytes.Buffer
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			buf.WriteString(p.Text)
		}
	}
	*c = MessageContent(buf.String())
	return nil
}

// Tool is a function definition offered to the model.
type Tool struct {
	// Always "function".
	// example: function
	Type     string      `json:"type" example:"function"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a callable function.
type FunctionDef struct {
	// example: get_current_weather
	Name        string          `json:"name" example:"get_current_weather"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty" swaggertype:"object"`
}

// ToolCall is a call emitted by the model. Index is set on stream deltas.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	// example: get_current_weather
	Name string `json:"name" example:"get_current_weather"`
	// example: {"location":"Boston, MA"}
	Arguments string `json:"arguments" example:"{\"location\":\"Boston, MA\"}"`
}

// ResponseFormat selects free text or a JSON-schema constraint.
type ResponseFormat struct {
	// text, json_object or json_schema.
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema wraps a schema in the OpenAI request shape.
type JSONSchema struct {
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty" swaggertype:"object"`
	Strict bool            `json:"strict,omitempty"`
}

// StreamOptions controls extra stream frames.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatCompletionResponse is the buffered response.
type ChatCompletionResponse struct {
	// example: chatcmpl-3f2a9c1d7e
	ID                string                 `json:"id" example:"chatcmpl-3f2a9c1d7e"`
	Object            string                 `json:"object" example:"chat.completion"`
	Created           int64                  `json:"created"`
	Model             string                 `json:"model"`
	SystemFingerprint string                 `json:"system_fingerprint,omitempty"`
	Choices           []ChatCompletionChoice `json:"choices"`
	Usage             *Usage                 `json:"usage,omitempty"`
}

// ChatCompletionChoice is the single choice of a buffered response.
type ChatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason" example:"stop"`
	Logprobs     *ChoiceLogprobs `json:"logprobs,omitempty"`
}

// ResponseMessage is the assistant message of a buffered response.
type ResponseMessage struct {
	Role      string     `json:"role" example:"assistant"`
	Content   *string    `json:"content"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChunk is one server-sent event of a streamed response.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object" example:"chat.completion.chunk"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// ChunkChoice carries a delta. FinishReason is null until the terminal frame.
type ChunkChoice struct {
	Index        int             `json:"index"`
	Delta        ChatDelta       `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
	Logprobs     *ChoiceLogprobs `json:"logprobs,omitempty"`
}

// ChatDelta is the incremental message of a stream frame.
type ChatDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is token accounting for one completion.
type Usage struct {
	PromptTokens        int                  `json:"prompt_tokens" example:"42"`
	CompletionTokens    int                  `json:"completion_tokens" example:"17"`
	TotalTokens         int                  `json:"total_tokens" example:"59"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails reports prompt tokens served from the prompt cache.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens" example:"30"`
}

// ChoiceLogprobs wraps per-token log probabilities.
type ChoiceLogprobs struct {
	Content []TokenLogprob `json:"content"`
}

// TokenLogprob describes one generated token.
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	Bytes       []int        `json:"bytes"`
	TopLogprobs []TopLogprob `json:"top_logprobs"`
}

// TopLogprob is one alternative for a generated token.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
	Bytes   []int   `json:"bytes"`
}
