package chunker

import (
	"strings"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Character splits text into fixed-length character windows with overlap.
// Windows advance by Size-Overlap runes; the final window may be shorter but
// is never whitespace-only. A window that reaches the end of the text is the
// last one emitted, so no runt window trails it.
type Character struct {
	opts Options
}

// NewCharacter validates the window geometry and creates the strategy.
func NewCharacter(opts Options) (*Character, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Character{opts: opts}, nil
}

// Name implements Strategy.
func (c *Character) Name() string { return StrategyCharacter }

// Chunk implements Strategy. Empty input yields zero chunks and no error.
func (c *Character) Chunk(text string, pageBreaks []domain.PageBreak) ([]domain.ChunkCandidate, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := c.opts.Size - c.opts.Overlap
	var out []domain.ChunkCandidate

	for start := 0; start < len(runes); start += step {
		end := start + c.opts.Size
		if end > len(runes) {
			end = len(runes)
		}
		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			meta := domain.Metadata{
				domain.MetaChunkStrategy: StrategyCharacter,
				domain.MetaChunkSize:     c.opts.Size,
				domain.MetaChunkOverlap:  c.opts.Overlap,
			}
			// A chunk crossing a page boundary records its starting page.
			if page := domain.PageAt(pageBreaks, start); page > 0 {
				meta[domain.MetaPageNumber] = page
			}
			out = append(out, domain.ChunkCandidate{
				Index:    len(out),
				Content:  content,
				Metadata: meta,
			})
		}
		if end >= len(runes) {
			break
		}
	}
	return out, nil
}
