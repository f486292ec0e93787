package stream

import (
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Classifier flags fragments. Terminal fragments carry the finish signal;
// summary fragments carry aggregate usage. StripKeys are removed from every
// fragment before per-fragment comparison so summary payloads, which are
// compared under their own policy, never leak into it.
type Classifier struct {
	Terminal  func(tree.Value) bool
	Summary   func(tree.Value) bool
	StripKeys []string
}

func (c Classifier) terminal(v tree.Value) bool {
	return c.Terminal != nil && c.Terminal(v)
}

func (c Classifier) summary(v tree.Value) bool {
	return c.Summary != nil && c.Summary(v)
}

// OpenAI classifies chat.completion.chunk fragments: a non-null
// choices[*].finish_reason is terminal, a non-null usage mapping is a
// summary.
var OpenAI = Classifier{
	Terminal:  HasFinishReason,
	Summary:   HasUsage,
	StripKeys: []string{"usage"},
}

// HasFinishReason reports whether any choice carries a finish reason.
func HasFinishReason(v tree.Value) bool {
	_, ok := FinishReason(v)
	return ok
}

// FinishReason returns the first non-null choices[*].finish_reason.
func FinishReason(v tree.Value) (string, bool) {
	_, reason, ok := FinishChoice(v)
	return reason, ok
}

// FinishChoice is FinishReason that also returns the position of the choice
// carrying the reason inside choices.
func FinishChoice(v tree.Value) (int, string, bool) {
	choices, ok := v.Get("choices")
	if !ok {
		return 0, "", false
	}
	for i, c := range choices.Items() {
		fr, ok := c.Get("finish_reason")
		if !ok || fr.IsNull() {
			continue
		}
		if s, ok := fr.Str(); ok && s != "" {
			return i, s, true
		}
	}
	return 0, "", false
}

// HasUsage reports whether v carries a usage mapping.
func HasUsage(v tree.Value) bool {
	u, ok := v.Get("usage")
	return ok && u.Kind() == tree.KindMapping
}
