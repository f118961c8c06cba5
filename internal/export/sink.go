// Package export writes pipeline state out for downstream consumers: the raw
// archive bundle, the relational tables, and per-document markdown files.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Sink receives export artifacts. WriteBlob streams large bundles; WriteTable
// writes a serialized table in one shot. Both return a locator for the
// manifest.
type Sink interface {
	WriteBlob(ctx context.Context, name string, r io.Reader) (string, error)
	WriteTable(ctx context.Context, name string, data []byte) (string, error)
}

// LocalSink writes export artifacts into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink builds a sink rooted at dir, creating it if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

// WriteBlob streams r into a file under the sink directory.
func (s *LocalSink) WriteBlob(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.dir, name)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return target, nil
}

// WriteTable writes a serialized table file under the sink directory.
func (s *LocalSink) WriteTable(ctx context.Context, name string, data []byte) (string, error) {
	return s.WriteBlob(ctx, name, bytes.NewReader(data))
}

// GCSSink writes export artifacts to a Google Cloud Storage bucket.
type GCSSink struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSSink builds a sink for the given bucket and optional object prefix.
func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

// WriteBlob streams r into an object and returns its gs:// locator.
func (s *GCSSink) WriteBlob(ctx context.Context, name string, r io.Reader) (string, error) {
	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", s.bucket, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// WriteTable writes a serialized table to an object.
func (s *GCSSink) WriteTable(ctx context.Context, name string, data []byte) (string, error) {
	return s.WriteBlob(ctx, name, bytes.NewReader(data))
}

// Close releases the underlying client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
