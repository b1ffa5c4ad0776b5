package textgen

import "strings"

// Default reasoning delimiters.
const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// ReasoningExtractor splits completed text into visible content and hidden
// reasoning. It runs once over the full text because the delimiters may
// span several tokens.
type ReasoningExtractor struct {
	Enabled bool
	// Prefilled is set when the rendered prompt already opened the block,
	// so generated text starts inside it.
	Prefilled bool
	Open      string
	Close     string
}

// NewReasoningExtractor configures an extractor from the rendered prompt.
// The prompt must end exactly at the opening tag to count as prefilled.
func NewReasoningExtractor(enabled bool, prompt string) ReasoningExtractor {
	r := ReasoningExtractor{Enabled: enabled, Open: ThinkOpen, Close: ThinkClose}
	if enabled {
		r.Prefilled = strings.HasSuffix(prompt, r.Open)
	}
	return r
}

// Split is the result of Extract.
type Split struct {
	Content   string
	Reasoning string
}

// Extract returns the split and whether a reasoning block was found.
// Without an opening delimiter (and no prefill) text is returned unchanged.
// A block that never closes is all reasoning with empty content, so a
// half-formed hidden section is never shown as content.
func (r ReasoningExtractor) Extract(text string) (Split, bool) {
	if !r.Enabled {
		return Split{Content: text}, false
	}
	open, closeTag := r.Open, r.Close
	if open == "" {
		open = ThinkOpen
	}
	if closeTag == "" {
		closeTag = ThinkClose
	}
	before, rest := "", text
	if !r.Prefilled {
		i := strings.Index(text, open)
		if i < 0 {
			return Split{Content: text}, false
		}
		before, rest = text[:i], text[i+len(open):]
	}
	j := strings.Index(rest, closeTag)
	if j < 0 {
		return Split{Content: strings.TrimSpace(before), Reasoning: strings.TrimSpace(rest)}, true
	}
	content := before + rest[j+len(closeTag):]
	return Split{Content: strings.TrimSpace(content), Reasoning: strings.TrimSpace(rest[:j])}, true
}
