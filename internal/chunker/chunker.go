// Package chunker splits raw document text into ordered, overlapping
// segments ready for embedding. Two strategies exist: fixed-size character
// windows and fixed-size token windows over an external tokenizer.
package chunker

import (
	"fmt"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Strategy names recorded in chunk metadata.
const (
	StrategyCharacter = "character"
	StrategyToken     = "token"
)

// Strategy produces ordered chunk candidates from raw text. Implementations
// guarantee contiguous zero-based indices in original text order and never
// emit whitespace-only content.
type Strategy interface {
	Chunk(text string, pageBreaks []domain.PageBreak) ([]domain.ChunkCandidate, error)
	Name() string
}

// Options hold the window geometry shared by both strategies.
type Options struct {
	Size    int
	Overlap int
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", o.Size, domain.ErrConfiguration)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d: %w", o.Overlap, domain.ErrConfiguration)
	}
	if o.Overlap >= o.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d: %w",
			o.Overlap, o.Size, domain.ErrConfiguration)
	}
	return nil
}
