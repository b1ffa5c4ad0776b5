package textgen

import (
	"omnid/internal/engine"
)

// Defaults applied when a request leaves a parameter unset.
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
	DefaultTopLogprobs = 5
	MaxTopLogprobs     = 20
)

// Params is the immutable description of one generation: conversation,
// sampling options, structural constraints and template switches.
type Params struct {
	Messages []ChatMessage
	Tools    []Tool
	// ToolsDisabled is set for tool_choice "none": tools are neither
	// rendered nor parsed.
	ToolsDisabled bool
	Stop          []string
	Options       engine.Options
	// Logprobs requests per-token detail; TopLogprobs is how many
	// alternatives to report per token.
	Logprobs    bool
	TopLogprobs int
	Template    TemplateOptions
	AdapterPath string
}

// Validate checks ranges and fills defaults.
func (p *Params) Validate() error {
	if len(p.Messages) == 0 {
		return ErrValidation("messages must not be empty")
	}
	for i, m := range p.Messages {
		switch m.Role {
		case "system", "developer", "user", "assistant", "tool":
		default:
			return ErrValidation("messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	o := &p.Options
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.MaxTokens < 0 {
		return ErrValidation("max_tokens must be positive")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return ErrValidation("temperature must be between 0 and 2")
	}
	if o.TopP < 0 || o.TopP > 1 {
		return ErrValidation("top_p must be between 0 and 1")
	}
	if o.MinP < 0 || o.MinP > 1 {
		return ErrValidation("min_p must be between 0 and 1")
	}
	if p.TopLogprobs < 0 || p.TopLogprobs > MaxTopLogprobs {
		return ErrValidation("top_logprobs must be between 0 and %d", MaxTopLogprobs)
	}
	if p.Logprobs {
		// runtimes only report the sampled token's probability alongside alternatives
		o.TopLogprobs = max(1, p.TopLogprobs)
	}
	for _, t := range p.Tools {
		if t.Name == "" {
			return ErrValidation("tools: function name is required")
		}
	}
	if p.Template.ToolChoice != "" {
		found := false
		for _, t := range p.Tools {
			found = found || t.Name == p.Template.ToolChoice
		}
		if !found {
			return ErrValidation("tool_choice names unknown function %q", p.Template.ToolChoice)
		}
	}
	return nil
}

// OffersTools reports whether tool calls should be rendered and parsed.
func (p *Params) OffersTools() bool { return len(p.Tools) > 0 && !p.ToolsDisabled }
