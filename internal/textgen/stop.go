package textgen

import (
	"context"
	"strings"
	"unicode/utf8"

	"omnid/internal/engine"
)

// StopCondition is the outcome of checking a token history for stop phrases.
type StopCondition struct {
	Stop bool
	// Trim is how many trailing tokens to drop so no token carrying the
	// phrase survives in the history used for usage accounting.
	Trim int
	// Index is the byte offset of the matched phrase in Text. Visible
	// content ends there.
	Index  int
	Phrase string
	// Text is the decoded history the check ran against.
	Text string
}

// StopMatcher detects stop phrases in the decoded text of a growing token
// history. Matching on text rather than token ids is required because the
// same phrase tokenizes differently depending on what precedes it.
type StopMatcher struct {
	tok     engine.Tokenizer
	phrases []string
	longest int
	scanned int
}

// NewStopMatcher returns a matcher for phrases in caller order. Empty
// phrases are ignored.
func NewStopMatcher(tok engine.Tokenizer, phrases []string) *StopMatcher {
	m := &StopMatcher{tok: tok}
	for _, p := range phrases {
		if p == "" {
			continue
		}
		m.phrases = append(m.phrases, p)
		m.longest = max(m.longest, len(p))
	}
	return m
}

// Empty reports whether there is nothing to match.
func (m *StopMatcher) Empty() bool { return m == nil || len(m.phrases) == 0 }

// Check decodes the whole history and searches the region that could hold
// a phrase completed since the previous call. The earliest match in the
// text wins; caller order breaks ties at the same offset.
func (m *StopMatcher) Check(ctx context.Context, history []engine.Token) (StopCondition, error) {
	text, err := m.tok.Decode(ctx, history)
	if err != nil {
		return StopCondition{}, err
	}
	cond := StopCondition{Text: text}
	if m.Empty() {
		return cond, nil
	}
	// earlier bytes can change when a multi-byte sequence completes
	start := max(0, m.scanned-m.longest-utf8.UTFMax)
	m.scanned = len(text)
	for _, p := range m.phrases {
		i := strings.Index(text[start:], p)
		if i < 0 || (cond.Stop && start+i >= cond.Index) {
			continue
		}
		cond.Stop = true
		cond.Index = start + i
		cond.Phrase = p
	}
	if !cond.Stop {
		return cond, nil
	}
	for cond.Trim < len(history) {
		cond.Trim++
		prefix, err := m.tok.Decode(ctx, history[:len(history)-cond.Trim])
		if err != nil {
			return StopCondition{}, err
		}
		if len(prefix) <= cond.Index {
			break
		}
	}
	return cond, nil
}

// Holdback returns how many trailing bytes of text form a proper prefix of
// some phrase. Those bytes must not be streamed yet: the next token may
// complete the phrase.
func (m *StopMatcher) Holdback(text string) int {
	if m.Empty() {
		return 0
	}
	best := 0
	for _, p := range m.phrases {
		for k := min(len(p)-1, len(text)); k > best; k-- {
			if strings.HasSuffix(text, p[:k]) {
				best = k
				break
			}
		}
	}
	return best
}

// incompleteUTF8 returns the length of a trailing partial UTF-8 sequence.
func incompleteUTF8(text string) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(text); i++ {
		c := text[len(text)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRuneInString(text[len(text)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
