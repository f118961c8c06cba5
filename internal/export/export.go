package export

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/place"
)

// Format selects the table serialization.
type Format string

// Supported table formats.
const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Store is the slice of the state store export reads from.
type Store interface {
	AllListings(ctx context.Context) ([]place.Listing, error)
	AllArchives(ctx context.Context) ([]place.Archive, error)
	AllDocuments(ctx context.Context) ([]place.Document, error)
	AllLabels(ctx context.Context) ([]place.Label, error)
}

// BlobStore reads raw archive bytes for the bundle.
type BlobStore interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Options control one export run.
type Options struct {
	// Format selects csv (gzipped) or jsonl tables.
	Format Format
	// DatedNames prefixes artifact names with the run date so successive
	// exports land side by side instead of overwriting.
	DatedNames bool
}

// Exporter writes the archive bundle and the relational tables to a sink.
type Exporter struct {
	store  Store
	blobs  BlobStore
	sink   Sink
	clock  Clock
	logger *zap.Logger
}

// New constructs an Exporter.
func New(store Store, blobs BlobStore, sink Sink, clock Clock, logger *zap.Logger) *Exporter {
	return &Exporter{
		store:  store,
		blobs:  blobs,
		sink:   sink,
		clock:  clock,
		logger: logger,
	}
}

// ExportArchives writes one tar.gz bundle of every fetched archive plus a
// serialized file per table. Rows are ordered by primary key and artifact
// names are fixed, so repeated exports of the same state produce identical
// bytes at identical locations.
func (e *Exporter) ExportArchives(ctx context.Context, opts Options) (place.ExportManifest, error) {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	if opts.Format != FormatCSV && opts.Format != FormatJSONL {
		return place.ExportManifest{}, fmt.Errorf("unsupported format %q", opts.Format)
	}

	listings, err := e.store.AllListings(ctx)
	if err != nil {
		return place.ExportManifest{}, fmt.Errorf("read listings: %w", err)
	}
	archives, err := e.store.AllArchives(ctx)
	if err != nil {
		return place.ExportManifest{}, fmt.Errorf("read archives: %w", err)
	}
	documents, err := e.store.AllDocuments(ctx)
	if err != nil {
		return place.ExportManifest{}, fmt.Errorf("read documents: %w", err)
	}
	labels, err := e.store.AllLabels(ctx)
	if err != nil {
		return place.ExportManifest{}, fmt.Errorf("read labels: %w", err)
	}

	prefix := ""
	if opts.DatedNames {
		prefix = e.clock.Now().UTC().Format("2006-01-02") + "."
	}

	manifest := place.ExportManifest{
		Tables:    make(map[string]string),
		Archives:  len(archives),
		Listings:  len(listings),
		Documents: len(documents),
	}

	bundle, err := e.buildBundle(ctx, archives)
	if err != nil {
		return manifest, err
	}
	bundleLoc, err := e.sink.WriteBlob(ctx, prefix+"archives.tar.gz", bytes.NewReader(bundle))
	if err != nil {
		return manifest, fmt.Errorf("write bundle: %w", err)
	}
	manifest.Bundle = bundleLoc

	tables := []struct {
		name string
		rows tableRows
	}{
		{"listings", listingRows(listings)},
		{"archives", archiveRows(archives)},
		{"documents", documentRows(documents)},
		{"labels", labelRows(labels)},
	}
	for _, table := range tables {
		data, name, err := serializeTable(prefix+table.name, table.rows, opts.Format)
		if err != nil {
			return manifest, fmt.Errorf("serialize %s: %w", table.name, err)
		}
		loc, err := e.sink.WriteTable(ctx, name, data)
		if err != nil {
			return manifest, fmt.Errorf("write %s: %w", table.name, err)
		}
		manifest.Tables[table.name] = loc
	}

	e.logger.Info("export complete",
		zap.String("bundle", manifest.Bundle),
		zap.Int("listings", manifest.Listings),
		zap.Int("archives", manifest.Archives),
		zap.Int("documents", manifest.Documents),
	)
	return manifest, nil
}

// buildBundle packs every fetched archive blob into an in-memory tar.gz.
// Entry order follows archive id and modification times come from the stored
// fetch time, so the bytes are reproducible.
func (e *Exporter) buildBundle(ctx context.Context, archives []place.Archive) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, archive := range archives {
		if archive.Status != place.ArchiveFetched {
			continue
		}
		data, err := e.blobs.GetObject(ctx, archive.Path)
		if err != nil {
			return nil, fmt.Errorf("read archive %s: %w", archive.Path, err)
		}
		header := &tar.Header{
			Name:    archive.Path,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: archive.FetchedAt.UTC(),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header %s: %w", archive.Path, err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("write tar entry %s: %w", archive.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// tableRows is a serialization-agnostic table: a header and string cells for
// csv, raw structs for jsonl.
type tableRows struct {
	header  []string
	cells   [][]string
	records []any
}

func serializeTable(name string, rows tableRows, format Format) (data []byte, fileName string, err error) {
	switch format {
	case FormatJSONL:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, record := range rows.records {
			if err := enc.Encode(record); err != nil {
				return nil, "", err
			}
		}
		return buf.Bytes(), name + ".jsonl", nil
	default:
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		w := csv.NewWriter(gz)
		if err := w.Write(rows.header); err != nil {
			return nil, "", err
		}
		if err := w.WriteAll(rows.cells); err != nil {
			return nil, "", err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", err
		}
		if err := gz.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), name + ".csv.gz", nil
	}
}

func listingRows(listings []place.Listing) tableRows {
	rows := tableRows{
		header: []string{"id", "external_id", "page", "url", "reference", "title", "description", "organization", "org_acronym", "status", "discovered_at"},
	}
	for _, l := range listings {
		rows.cells = append(rows.cells, []string{
			strconv.FormatInt(l.ID, 10), l.ExternalID, strconv.Itoa(l.Page), l.URL,
			l.Reference, l.Title, l.Description, l.Organization, l.OrgAcronym,
			string(l.Status), timeCell(l.DiscoveredAt),
		})
		rows.records = append(rows.records, l)
	}
	return rows
}

func archiveRows(archives []place.Archive) tableRows {
	rows := tableRows{
		header: []string{"id", "listing_id", "kind", "path", "checksum", "size_bytes", "status", "fetched_at"},
	}
	for _, a := range archives {
		rows.cells = append(rows.cells, []string{
			strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.ListingID, 10), string(a.Kind),
			a.Path, a.Checksum, strconv.FormatInt(a.SizeBytes, 10), string(a.Status),
			timeCell(a.FetchedAt),
		})
		rows.records = append(rows.records, a)
	}
	return rows
}

func documentRows(documents []place.Document) tableRows {
	rows := tableRows{
		header: []string{"id", "archive_id", "file_name", "content", "content_hash", "status", "extracted_at", "reason"},
	}
	for _, d := range documents {
		rows.cells = append(rows.cells, []string{
			strconv.FormatInt(d.ID, 10), strconv.FormatInt(d.ArchiveID, 10), d.FileName,
			d.Content, d.ContentHash, string(d.Status), timeCell(d.ExtractedAt), d.Reason,
		})
		rows.records = append(rows.records, d)
	}
	return rows
}

func labelRows(labels []place.Label) tableRows {
	rows := tableRows{
		header: []string{"id", "document_id", "kind", "value", "span", "confidence", "run_id", "created_at"},
	}
	for _, l := range labels {
		rows.cells = append(rows.cells, []string{
			strconv.FormatInt(l.ID, 10), strconv.FormatInt(l.DocumentID, 10), string(l.Kind),
			l.Value, l.Span, strconv.FormatFloat(l.Confidence, 'f', -1, 64),
			l.RunID, timeCell(l.CreatedAt),
		})
		rows.records = append(rows.records, l)
	}
	return rows
}

func timeCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
