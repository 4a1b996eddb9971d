package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens with a BPE vocabulary. Groq models use their own
// tokenizers; cl100k_base is close enough for budgeting.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding: %w", err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
