// Package loader turns source files into raw text plus metadata and page
// boundaries. It is a boundary of the retrieval core: the pipeline only
// depends on its output shape.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Document is loader output: the full text, document-level metadata, and the
// rune offsets at which pages start (empty for unpaginated sources).
type Document struct {
	Text       string
	Metadata   domain.Metadata
	PageBreaks []domain.PageBreak
}

// Load reads the file at path and dispatches on its extension.
// Missing files fail with ErrNotFound, unknown extensions with
// ErrUnsupportedFormat.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return loadText(path, info)
	case ".pdf":
		return loadPDF(path, info)
	default:
		return nil, fmt.Errorf("%s: %w", path, domain.ErrUnsupportedFormat)
	}
}
