package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hollis-labs/ragline/internal/domain"
)

func loadText(path string, info os.FileInfo) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Document{
		Text: string(data),
		Metadata: domain.Metadata{
			domain.MetaFileName: filepath.Base(path),
			domain.MetaFileType: "text/plain",
			domain.MetaFileSize: info.Size(),
		},
	}, nil
}
