// Package tokenizer adapts tiktoken encodings to the chunker's Tokenizer
// boundary.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Tiktoken wraps a tiktoken encoding (e.g. o200k_base, cl100k_base).
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w: %w", encoding, domain.ErrConfiguration, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode converts text into token ids.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token ids back into text.
func (t *Tiktoken) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
