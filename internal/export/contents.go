package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/place"
)

// DocumentStore pages through extracted documents for the bulk content
// export.
type DocumentStore interface {
	ListExtractedDocuments(ctx context.Context, limit int, afterID int64) ([]place.Document, error)
}

// ContentsOptions control one bulk content export.
type ContentsOptions struct {
	// Limit caps how many documents are written; <= 0 means all.
	Limit int
	// OutputDir receives one markdown file per document.
	OutputDir string
	// Silent suppresses per-file logging.
	Silent bool
}

// contentsPageSize is how many documents are pulled from the store per query.
const contentsPageSize = 200

// ExportContents writes the extracted markdown of each document to its own
// file under the output directory. File names embed the document id so equal
// names from different archives never collide.
func ExportContents(ctx context.Context, store DocumentStore, opts ContentsOptions, logger *zap.Logger) (int, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return 0, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	written := 0
	afterID := int64(0)
	for {
		pageSize := contentsPageSize
		if opts.Limit > 0 && opts.Limit-written < pageSize {
			pageSize = opts.Limit - written
		}
		if pageSize <= 0 {
			break
		}

		docs, err := store.ListExtractedDocuments(ctx, pageSize, afterID)
		if err != nil {
			return written, err
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			name := ContentFileName(doc.ID, doc.FileName)
			target := filepath.Join(opts.OutputDir, name)
			if err := os.WriteFile(target, []byte(doc.Content), 0o600); err != nil {
				return written, fmt.Errorf("write %s: %w", name, err)
			}
			written++
			if !opts.Silent {
				logger.Info("document exported",
					zap.Int64("document_id", doc.ID),
					zap.String("file", name),
				)
			}
		}
		afterID = docs[len(docs)-1].ID
	}
	return written, nil
}

// ContentFileName builds the output name for one document's markdown:
// {document id}.{original stem}.md.
func ContentFileName(id int64, fileName string) string {
	stem := strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
	stem = sanitizeStem(stem)
	if stem == "" {
		stem = "document"
	}
	return fmt.Sprintf("%d.%s.md", id, stem)
}

// sanitizeStem strips path separators and control characters so archive entry
// names cannot escape the output directory.
func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r == '/' || r == '\\' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ". ")
}
