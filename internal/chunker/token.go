package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Tokenizer is the external boundary for token-based chunking.
// Decode(Encode(x)) is expected to reproduce x for the supported corpus.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// Token splits text into fixed-size token windows with overlap, measured in
// token count over the supplied tokenizer. Chunk content is the detokenized
// text of the window.
type Token struct {
	tok  Tokenizer
	opts Options
}

// NewToken validates the window geometry and creates the strategy.
func NewToken(tok Tokenizer, opts Options) (*Token, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, domain.ErrConfiguration
	}
	return &Token{tok: tok, opts: opts}, nil
}

// Name implements Strategy.
func (t *Token) Name() string { return StrategyToken }

// Chunk implements Strategy. Empty input yields zero chunks and no error.
func (t *Token) Chunk(text string, pageBreaks []domain.PageBreak) ([]domain.ChunkCandidate, error) {
	tokens := t.tok.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := t.opts.Size - t.opts.Overlap
	var out []domain.ChunkCandidate

	for start := 0; start < len(tokens); start += step {
		end := start + t.opts.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		content := t.tok.Decode(tokens[start:end])
		if strings.TrimSpace(content) != "" {
			meta := domain.Metadata{
				domain.MetaChunkStrategy: StrategyToken,
				domain.MetaChunkSize:     t.opts.Size,
				domain.MetaChunkOverlap:  t.opts.Overlap,
				domain.MetaTokenCount:    end - start,
			}
			// Page lookup needs the rune offset of the window start in the
			// original text; the prefix decode provides it.
			if len(pageBreaks) > 0 {
				offset := utf8.RuneCountInString(t.tok.Decode(tokens[:start]))
				if page := domain.PageAt(pageBreaks, offset); page > 0 {
					meta[domain.MetaPageNumber] = page
				}
			}
			out = append(out, domain.ChunkCandidate{
				Index:    len(out),
				Content:  content,
				Metadata: meta,
			})
		}
		if end >= len(tokens) {
			break
		}
	}
	return out, nil
}
