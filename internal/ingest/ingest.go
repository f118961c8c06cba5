// Package ingest loads label batches produced by external recognition runs
// into the store. Batches are JSONL files; each line names a document by one
// of three identifier schemes and carries a single label.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/telemetry"
)

// IDSource selects how batch entries reference documents.
type IDSource string

// Identifier schemes accepted on the command line.
const (
	// SourceFileName resolves entries by the file name recorded at
	// extraction. Ambiguous names are reported unresolved.
	SourceFileName IDSource = "filename"
	// SourceDocumentID resolves entries by numeric document id.
	SourceDocumentID IDSource = "document_id"
	// SourceContentHash resolves entries by extracted content digest.
	SourceContentHash IDSource = "hash"
)

// Valid reports whether the source names a known scheme.
func (s IDSource) Valid() bool {
	switch s {
	case SourceFileName, SourceDocumentID, SourceContentHash:
		return true
	}
	return false
}

// Store is the slice of the state store ingestion needs.
type Store interface {
	GetDocument(ctx context.Context, id int64) (place.Document, error)
	FindDocumentByFileName(ctx context.Context, fileName string) (place.Document, error)
	FindDocumentByContentHash(ctx context.Context, hash string) (place.Document, error)
	InsertLabels(ctx context.Context, labels []place.Label) (int, int, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// batchEntry is one JSONL line in a label batch.
type batchEntry struct {
	Document   string  `json:"document"`
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Span       string  `json:"span,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Ingestor loads label batches into the store.
type Ingestor struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

// New constructs an Ingestor.
func New(store Store, clock Clock, logger *zap.Logger) *Ingestor {
	return &Ingestor{store: store, clock: clock, logger: logger}
}

// IngestDir loads every .jsonl batch under dir in name order. All batches in
// one call share a run id, so labels from distinct runs stay distinguishable
// and re-running the same call inserts nothing new. Entries that cannot be
// resolved to a document are reported and skipped; they never abort the run.
func (i *Ingestor) IngestDir(ctx context.Context, dir string, source IDSource) (place.IngestReport, error) {
	if !source.Valid() {
		return place.IngestReport{}, fmt.Errorf("unknown id source %q", source)
	}

	batches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return place.IngestReport{}, fmt.Errorf("scan batch directory: %w", err)
	}
	if len(batches) == 0 {
		return place.IngestReport{}, fmt.Errorf("no .jsonl batches under %s", dir)
	}
	sort.Strings(batches)

	report := place.IngestReport{RunID: uuid.NewString()}
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := i.ingestBatch(ctx, batch, source, &report); err != nil {
			return report, fmt.Errorf("batch %s: %w", filepath.Base(batch), err)
		}
	}

	telemetry.ObserveLabels(report.Inserted)
	i.logger.Info("label ingestion complete",
		zap.String("run_id", report.RunID),
		zap.Int("batches", report.Batches),
		zap.Int("inserted", report.Inserted),
		zap.Int("deduped", report.Deduped),
		zap.Int("unresolved", len(report.Unresolved)),
	)
	return report, nil
}

// ingestBatch parses one JSONL file and inserts its labels in a single
// transaction. Within a batch, duplicate (document, kind) pairs keep the
// highest-confidence entry.
func (i *Ingestor) ingestBatch(ctx context.Context, path string, source IDSource, report *place.IngestReport) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	type labelKey struct {
		documentID int64
		kind       place.LabelKind
	}
	best := make(map[labelKey]place.Label)
	var order []labelKey
	now := i.clock.Now()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry batchEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if entry.Kind == "" || entry.Value == "" {
			return fmt.Errorf("line %d: kind and value are required", lineNo)
		}

		doc, err := i.resolve(ctx, entry.Document, source)
		if err != nil {
			var unresolved *place.UnresolvedIdentifierError
			if errors.As(err, &unresolved) {
				report.Unresolved = append(report.Unresolved,
					fmt.Sprintf("%s:%d %s", filepath.Base(path), lineNo, unresolved.Identifier))
				i.logger.Warn("batch entry unresolved", zap.Error(unresolved))
				continue
			}
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		key := labelKey{documentID: doc.ID, kind: place.LabelKind(entry.Kind)}
		existing, seen := best[key]
		if seen && existing.Confidence >= entry.Confidence {
			report.Deduped++
			continue
		}
		if seen {
			report.Deduped++
		} else {
			order = append(order, key)
		}
		best[key] = place.Label{
			DocumentID: doc.ID,
			Kind:       key.kind,
			Value:      entry.Value,
			Span:       entry.Span,
			Confidence: entry.Confidence,
			RunID:      report.RunID,
			CreatedAt:  now,
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	labels := make([]place.Label, 0, len(order))
	for _, key := range order {
		labels = append(labels, best[key])
	}
	inserted, skipped, err := i.store.InsertLabels(ctx, labels)
	if err != nil {
		return err
	}

	report.Batches++
	report.Inserted += inserted
	report.Deduped += skipped
	return nil
}

// resolve maps one batch identifier to a document under the chosen scheme.
func (i *Ingestor) resolve(ctx context.Context, identifier string, source IDSource) (place.Document, error) {
	if identifier == "" {
		return place.Document{}, &place.UnresolvedIdentifierError{Identifier: identifier, Source: string(source)}
	}

	var (
		doc place.Document
		err error
	)
	switch source {
	case SourceDocumentID:
		id, parseErr := strconv.ParseInt(identifier, 10, 64)
		if parseErr != nil {
			return place.Document{}, &place.UnresolvedIdentifierError{Identifier: identifier, Source: string(source)}
		}
		doc, err = i.store.GetDocument(ctx, id)
	case SourceContentHash:
		doc, err = i.store.FindDocumentByContentHash(ctx, identifier)
	default:
		doc, err = i.store.FindDocumentByFileName(ctx, identifier)
	}

	if err != nil {
		if errors.Is(err, place.ErrNotFound) {
			return place.Document{}, &place.UnresolvedIdentifierError{Identifier: identifier, Source: string(source)}
		}
		return place.Document{}, err
	}
	return doc, nil
}
