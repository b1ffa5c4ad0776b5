package chat

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"omnid/internal/engine"
	"omnid/internal/textgen"
	"omnid/pkg/types"
)

// Extra request fields are routed by name to the sampler, the model loader
// or the chat template. Anything else is ignored.
var (
	samplerKeys = map[string]bool{
		"top_k": true, "min_p": true, "min_tokens_to_keep": true,
		"xtc_probability": true, "xtc_threshold": true, "seed": true,
		"repetition_penalty": true, "frequency_penalty": true, "presence_penalty": true,
	}
	modelKeys = map[string]bool{
		"adapter_path": true, "chat_template_config": true,
	}
	templateKeys = map[string]bool{
		"enable_thinking": true, "thinking_budget": true, "thinking": true,
		"thinkingConfig": true, "reasoning_effort": true, "reasoning": true,
	}
)

// ExtraParams is the routed view of the request's unknown fields.
type ExtraParams struct {
	Sampler  map[string]json.RawMessage
	Model    map[string]json.RawMessage
	Template map[string]json.RawMessage
	Ignored  []string
}

// SplitExtra routes extra fields by name. chat_template_config entries
// override the quick template keys.
func SplitExtra(extra map[string]json.RawMessage) ExtraParams {
	out := ExtraParams{
		Sampler:  map[string]json.RawMessage{},
		Model:    map[string]json.RawMessage{},
		Template: map[string]json.RawMessage{},
	}
	for k, v := range extra {
		switch {
		case samplerKeys[k]:
			out.Sampler[k] = v
		case modelKeys[k]:
			out.Model[k] = v
		case templateKeys[k]:
			out.Template[k] = v
		default:
			out.Ignored = append(out.Ignored, k)
		}
	}
	sort.Strings(out.Ignored)
	if raw, ok := out.Model["chat_template_config"]; ok {
		var cfg map[string]json.RawMessage
		if err := json.Unmarshal(raw, &cfg); err == nil {
			for k, v := range cfg {
				out.Template[k] = v
			}
		}
	}
	return out
}

// ParseRequest validates an API request and turns it into generation
// parameters. Model lookup is left to the caller.
func ParseRequest(req types.ChatCompletionRequest) (textgen.Params, ExtraParams, error) {
	var p textgen.Params
	extra := SplitExtra(req.Extra)
	if strings.TrimSpace(req.Model) == "" {
		return p, extra, textgen.ErrValidation("model is required")
	}

	for i, m := range req.Messages {
		msg := textgen.ChatMessage{
			Role:       m.Role,
			Content:    string(m.Content),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for j, c := range m.ToolCalls {
			if c.Function.Name == "" {
				return p, extra, textgen.ErrValidation("messages[%d].tool_calls[%d]: function name is required", i, j)
			}
			msg.ToolCalls = append(msg.ToolCalls, textgen.ToolCall{
				Index:     j,
				ID:        c.ID,
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			})
		}
		p.Messages = append(p.Messages, msg)
	}

	for i, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			return p, extra, textgen.ErrValidation("tools[%d]: unsupported type %q", i, t.Type)
		}
		p.Tools = append(p.Tools, textgen.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	if err := parseToolChoice(req.ToolChoice, &p); err != nil {
		return p, extra, err
	}

	o := &p.Options
	o.Temperature = textgen.DefaultTemperature
	if req.Temperature != nil {
		o.Temperature = *req.Temperature
	}
	o.TopP = textgen.DefaultTopP
	if req.TopP != nil {
		o.TopP = *req.TopP
	}
	maxTokens := req.MaxTokens
	if maxTokens == nil {
		maxTokens = req.MaxCompletionTokens
	}
	if maxTokens != nil {
		if *maxTokens < 1 {
			return p, extra, textgen.ErrValidation("max_tokens must be positive")
		}
		o.MaxTokens = *maxTokens
	}
	if req.Seed != nil {
		o.Seed = *req.Seed
	}
	if req.FrequencyPenalty != nil {
		o.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		o.PresencePenalty = *req.PresencePenalty
	}
	if len(req.LogitBias) > 0 {
		o.LogitBias = make(map[engine.Token]float64, len(req.LogitBias))
		for k, v := range req.LogitBias {
			id, err := strconv.ParseInt(k, 10, 32)
			if err != nil {
				return p, extra, textgen.ErrValidation("logit_bias: %q is not a token id", k)
			}
			o.LogitBias[engine.Token(id)] = v
		}
	}
	p.Stop = req.Stop

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case "", "text":
		case "json_object":
			o.JSONSchema = json.RawMessage(`{"type":"object"}`)
		case "json_schema":
			if rf.JSONSchema == nil || len(bytes.TrimSpace(rf.JSONSchema.Schema)) == 0 {
				return p, extra, textgen.ErrValidation("response_format.json_schema.schema is required")
			}
			o.JSONSchema = rf.JSONSchema.Schema
		default:
			return p, extra, textgen.ErrValidation("response_format: unsupported type %q", rf.Type)
		}
	}
	p.Logprobs = req.Logprobs
	if req.TopLogprobs != nil {
		p.TopLogprobs = *req.TopLogprobs
	} else if req.Logprobs {
		p.TopLogprobs = textgen.DefaultTopLogprobs
	}

	if err := applySampler(extra.Sampler, o); err != nil {
		return p, extra, err
	}
	if raw, ok := extra.Model["adapter_path"]; ok {
		if err := json.Unmarshal(raw, &p.AdapterPath); err != nil {
			return p, extra, textgen.ErrValidation("adapter_path must be a string")
		}
	}
	think, err := resolveThinking(extra.Template)
	if err != nil {
		return p, extra, err
	}
	p.Template.EnableThinking = think

	if err := p.Validate(); err != nil {
		return p, extra, err
	}
	return p, extra, nil
}

func parseToolChoice(raw json.RawMessage, p *textgen.Params) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "none":
			p.ToolsDisabled = true
		case "auto", "required":
		default:
			return textgen.ErrValidation("tool_choice: unsupported value %q", mode)
		}
		return nil
	}
	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Function.Name == "" {
		return textgen.ErrValidation("tool_choice must be a string or {\"type\":\"function\",\"function\":{\"name\":...}}")
	}
	p.Template.ToolChoice = named.Function.Name
	return nil
}

func applySampler(kv map[string]json.RawMessage, o *engine.Options) error {
	for k, raw := range kv {
		var err error
		switch k {
		case "top_k":
			err = json.Unmarshal(raw, &o.TopK)
		case "min_p":
			err = json.Unmarshal(raw, &o.MinP)
		case "min_tokens_to_keep":
			err = json.Unmarshal(raw, &o.MinKeep)
		case "xtc_probability":
			err = json.Unmarshal(raw, &o.XTCProbability)
		case "xtc_threshold":
			err = json.Unmarshal(raw, &o.XTCThreshold)
		case "seed":
			err = json.Unmarshal(raw, &o.Seed)
		case "repetition_penalty":
			err = json.Unmarshal(raw, &o.RepetitionPenalty)
		case "frequency_penalty":
			err = json.Unmarshal(raw, &o.FrequencyPenalty)
		case "presence_penalty":
			err = json.Unmarshal(raw, &o.PresencePenalty)
		}
		if err != nil {
			return textgen.ErrValidation("%s: expected a number", k)
		}
	}
	if o.TopK < 0 {
		return textgen.ErrValidation("top_k must not be negative")
	}
	return nil
}

// resolveThinking folds the different ways clients ask to turn reasoning
// off into one switch. Reasoning is on unless a key disables it.
func resolveThinking(kv map[string]json.RawMessage) (bool, error) {
	enabled := true
	if raw, ok := kv["enable_thinking"]; ok {
		if err := json.Unmarshal(raw, &enabled); err != nil {
			return false, textgen.ErrValidation("enable_thinking must be a boolean")
		}
		return enabled, nil
	}
	if raw, ok := kv["thinking"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b, nil
		}
		var obj struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &obj) == nil && obj.Type == "disabled" {
			return false, nil
		}
	}
	if raw, ok := kv["thinkingConfig"]; ok {
		var cfg struct {
			IncludeThoughts *bool `json:"includeThoughts"`
			ThinkingBudget  *int  `json:"thinkingBudget"`
		}
		if json.Unmarshal(raw, &cfg) == nil {
			if cfg.IncludeThoughts != nil && !*cfg.IncludeThoughts {
				return false, nil
			}
			if cfg.ThinkingBudget != nil && *cfg.ThinkingBudget == 0 {
				return false, nil
			}
		}
	}
	if raw, ok := kv["thinking_budget"]; ok {
		var budget int
		if err := json.Unmarshal(raw, &budget); err != nil {
			return false, textgen.ErrValidation("thinking_budget must be an integer")
		}
		if budget == 0 {
			return false, nil
		}
	}
	if raw, ok := kv["reasoning_effort"]; ok {
		var effort string
		if json.Unmarshal(raw, &effort) == nil && effort == "none" {
			return false, nil
		}
	}
	if raw, ok := kv["reasoning"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b, nil
		}
		var obj struct {
			Enabled *bool  `json:"enabled"`
			Effort  string `json:"effort"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			if (obj.Enabled != nil && !*obj.Enabled) || obj.Effort == "none" {
				return false, nil
			}
		}
	}
	return enabled, nil
}
