// Package extractor unpacks fetched archives and converts their files to
// normalized markdown text. Failures are isolated per file: one unreadable PDF
// never blocks the rest of the bundle.
package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/telemetry"
)

// Store is the slice of the state store extraction needs.
type Store interface {
	ListArchivesNeedingExtraction(ctx context.Context) ([]place.Archive, error)
	ListArchivesByStatus(ctx context.Context, statuses ...place.ArchiveStatus) ([]place.Archive, error)
	UpsertDocument(ctx context.Context, d place.Document) (place.Document, error)
}

// BlobStore reads stored archive bytes back.
type BlobStore interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Hasher fingerprints extracted content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Options control one extraction run.
type Options struct {
	// Force re-extracts archives that already have extracted documents.
	Force bool
}

// Extractor drives the archive-to-markdown stage.
type Extractor struct {
	store  Store
	blobs  BlobStore
	hasher Hasher
	clock  Clock
	logger *zap.Logger
}

// New constructs an Extractor.
func New(store Store, blobs BlobStore, hasher Hasher, clock Clock, logger *zap.Logger) *Extractor {
	return &Extractor{
		store:  store,
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
}

// ExtractMarkdown unpacks every fetched archive that still needs extraction
// and records one document row per contained file. Conversion failures mark
// the single document failed with a reason and the run continues.
func (e *Extractor) ExtractMarkdown(ctx context.Context, opts Options) (place.ExtractionReport, error) {
	var (
		archives []place.Archive
		err      error
	)
	if opts.Force {
		archives, err = e.store.ListArchivesByStatus(ctx, place.ArchiveFetched)
	} else {
		archives, err = e.store.ListArchivesNeedingExtraction(ctx)
	}
	if err != nil {
		return place.ExtractionReport{}, fmt.Errorf("list extraction work: %w", err)
	}

	report := place.ExtractionReport{ArchivesScanned: len(archives)}
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.extractArchive(ctx, archive, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// extractArchive unpacks one archive. An unreadable zip fails every file in it
// at once via a single failed document row keyed on the archive path.
func (e *Extractor) extractArchive(ctx context.Context, archive place.Archive, report *place.ExtractionReport) error {
	data, err := e.blobs.GetObject(ctx, archive.Path)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", archive.Path, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Warn("archive is not a readable zip",
			zap.String("path", archive.Path),
			zap.Error(err),
		)
		report.Failed++
		report.FailedFiles = append(report.FailedFiles, archive.Path)
		return e.recordFailure(ctx, archive.ID, archive.Path, "unreadable zip: "+err.Error())
	}

	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.extractFile(ctx, archive.ID, file, report); err != nil {
			return err
		}
	}
	return nil
}

// extractFile converts one file inside an archive to markdown and records the
// document row. Returns an error only for store failures.
func (e *Extractor) extractFile(ctx context.Context, archiveID int64, file *zip.File, report *place.ExtractionReport) error {
	content, err := convertFile(file)
	if err != nil {
		var skip *unsupportedFormatError
		if errors.As(err, &skip) {
			report.Skipped++
			telemetry.ObserveDocument("skipped")
			e.logger.Debug("file format not extractable",
				zap.String("file", file.Name),
			)
			return nil
		}
		report.Failed++
		report.FailedFiles = append(report.FailedFiles, file.Name)
		telemetry.ObserveDocument("failed")
		extractErr := &place.ExtractionError{FileName: file.Name, Reason: err.Error()}
		e.logger.Warn("file extraction failed", zap.Error(extractErr))
		return e.recordFailure(ctx, archiveID, file.Name, extractErr.Reason)
	}

	normalized := Normalize(content)
	hash, err := e.hasher.Hash([]byte(normalized))
	if err != nil {
		return fmt.Errorf("hash content of %s: %w", file.Name, err)
	}

	_, err = e.store.UpsertDocument(ctx, place.Document{
		ArchiveID:   archiveID,
		FileName:    file.Name,
		Content:     normalized,
		ContentHash: hash,
		Status:      place.DocumentExtracted,
		ExtractedAt: e.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("record document %s: %w", file.Name, err)
	}
	report.Extracted++
	telemetry.ObserveDocument("ok")
	return nil
}

func (e *Extractor) recordFailure(ctx context.Context, archiveID int64, fileName, reason string) error {
	_, err := e.store.UpsertDocument(ctx, place.Document{
		ArchiveID:   archiveID,
		FileName:    fileName,
		Status:      place.DocumentFailed,
		ExtractedAt: e.clock.Now(),
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("record failed document %s: %w", fileName, err)
	}
	return nil
}

// Normalize canonicalizes extracted text so re-extraction of unchanged input
// produces byte-identical content: LF line endings, no trailing spaces, at
// most one blank line in a row, trailing newline.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	joined := strings.TrimRight(strings.Join(out, "\n"), "\n")
	if joined == "" {
		return ""
	}
	return joined + "\n"
}
