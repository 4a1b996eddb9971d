package tokens

import (
	"fmt"
	"strings"
)

// Estimator counts (or estimates) the tokens a model will see for text.
type Estimator interface {
	Count(text string) int
}

// Heuristic estimates tokens without a vocabulary. Exact tokenization is
// not required for budgeting because the server reports real counts.
type Heuristic struct{}

// Count uses ~1.33 tokens per word, but never less than one token per four
// bytes, which keeps formula-heavy paper text from being underestimated.
func (Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if byChars := len(text) / 4; byChars > tokens {
		tokens = byChars
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// ForName returns the estimator configured by name ("heuristic" or "tiktoken").
func ForName(name, model string) (Estimator, error) {
	switch strings.ToLower(name) {
	case "", "heuristic":
		return Heuristic{}, nil
	case "tiktoken":
		return NewTiktoken(model)
	default:
		return nil, fmt.Errorf("unknown tokenizer: %s", name)
	}
}
