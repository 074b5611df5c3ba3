package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/hollis-labs/ragline/internal/domain"
)

func loadPDF(path string, info os.FileInfo) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	meta := domain.Metadata{
		domain.MetaFileName: filepath.Base(path),
		domain.MetaFileType: "application/pdf",
		domain.MetaFileSize: info.Size(),
	}
	if author := pdfAuthor(reader); author != "" {
		meta[domain.MetaAuthor] = author
	}

	var sb strings.Builder
	var breaks []domain.PageBreak
	offset := 0

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		breaks = append(breaks, domain.PageBreak{Offset: offset, Page: i})
		sb.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}

	return &Document{
		Text:       sb.String(),
		Metadata:   meta,
		PageBreaks: breaks,
	}, nil
}

func pdfAuthor(reader *pdf.Reader) string {
	defer func() { _ = recover() }() // malformed Info dictionaries are common
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	return strings.TrimSpace(info.Key("Author").Text())
}
