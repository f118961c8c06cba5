// Package fetcher downloads document bundles for discovered listings with a
// bounded worker pool. Each listing is an independent unit of work: a failed
// download marks that listing and its archive row, never the run.
package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/policy"
	"github.com/openplace/placecrawl/internal/telemetry"
)

// Payload is one downloaded bundle: the file name the site assigned it and the
// raw bytes.
type Payload struct {
	FileName string
	Data     []byte
}

// Downloader fetches one bundle for a listing.
type Downloader interface {
	DownloadArchive(ctx context.Context, listing place.Listing, kind place.ArchiveKind) (Payload, error)
}

// Store is the slice of the state store the fetcher needs.
type Store interface {
	ListFetchWork(ctx context.Context) ([]place.Listing, error)
	UpsertArchive(ctx context.Context, a place.Archive) (place.Archive, error)
	MarkListingStatus(ctx context.Context, id int64, status place.ListingStatus) error
}

// BlobStore persists raw archive bytes and returns the stored path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, data []byte) (string, error)
}

// Hasher computes archive checksums.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Fetcher drives the archive download stage.
type Fetcher struct {
	store      Store
	downloader Downloader
	blobs      BlobStore
	hasher     Hasher
	clock      Clock
	retry      *policy.ExponentialRetryPolicy
	logger     *zap.Logger
}

// New constructs a Fetcher. A nil retry policy falls back to the defaults.
func New(store Store, downloader Downloader, blobs BlobStore, hasher Hasher, clock Clock, retry *policy.ExponentialRetryPolicy, logger *zap.Logger) *Fetcher {
	if retry == nil {
		retry = policy.NewExponentialRetryPolicy()
	}
	return &Fetcher{
		store:      store,
		downloader: downloader,
		blobs:      blobs,
		hasher:     hasher,
		clock:      clock,
		retry:      retry,
		logger:     logger,
	}
}

// FetchArchives downloads the DCE bundle for every listing still awaiting one.
// Work items run concurrently up to the given limit; already-fetched listings
// are skipped by the work query, so re-running after a partial failure only
// retries what did not complete.
func (f *Fetcher) FetchArchives(ctx context.Context, concurrency int) (place.FetchReport, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	work, err := f.store.ListFetchWork(ctx)
	if err != nil {
		return place.FetchReport{}, fmt.Errorf("list fetch work: %w", err)
	}

	var (
		mu     sync.Mutex
		report = place.FetchReport{Attempted: len(work)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, listing := range work {
		listing := listing
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := f.fetchOne(gctx, listing)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				telemetry.ObserveArchive("failed")
				report.Failures = append(report.Failures, place.FetchFailure{
					ListingID:  listing.ID,
					ExternalID: listing.ExternalID,
					Reason:     err.Error(),
				})
				return nil
			}
			telemetry.ObserveArchive("ok")
			report.Fetched++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// fetchOne downloads one listing's bundle, stores the blob, and records the
// archive row. Failures are written back to the store before being returned.
func (f *Fetcher) fetchOne(ctx context.Context, listing place.Listing) error {
	payload, err := f.download(ctx, listing)
	if err != nil {
		f.logger.Warn("archive download failed",
			zap.String("external_id", listing.ExternalID),
			zap.Error(err),
		)
		f.recordFailure(ctx, listing)
		return err
	}

	checksum, err := f.hasher.Hash(payload.Data)
	if err != nil {
		f.recordFailure(ctx, listing)
		return fmt.Errorf("checksum: %w", err)
	}

	name := ArchiveName(listing.ExternalID, payload.FileName, place.KindDCE)
	storedPath, err := f.blobs.PutObject(ctx, name, payload.Data)
	if err != nil {
		f.recordFailure(ctx, listing)
		return fmt.Errorf("store blob: %w", err)
	}

	_, err = f.store.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindDCE,
		Path:      storedPath,
		Checksum:  checksum,
		SizeBytes: int64(len(payload.Data)),
		Status:    place.ArchiveFetched,
		FetchedAt: f.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("record archive: %w", err)
	}
	if err := f.store.MarkListingStatus(ctx, listing.ID, place.ListingFetched); err != nil {
		return fmt.Errorf("mark listing fetched: %w", err)
	}

	f.logger.Info("archive fetched",
		zap.String("external_id", listing.ExternalID),
		zap.String("path", storedPath),
		zap.Int("size", len(payload.Data)),
	)
	return nil
}

// download runs the downloader under the retry policy.
func (f *Fetcher) download(ctx context.Context, listing place.Listing) (Payload, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		payload, err := f.downloader.DownloadArchive(ctx, listing, place.KindDCE)
		if err == nil {
			err = validatePayload(payload)
			if err == nil {
				return payload, nil
			}
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		// Between attempts the archive shows as retrying so an operator can
		// tell an in-flight retry from a final failure.
		f.markArchive(ctx, listing, place.ArchiveRetrying)
		select {
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		case <-time.After(f.retry.Backoff(attempt)):
		}
	}
	return Payload{}, lastErr
}

// validatePayload rejects payloads that are not readable zip archives. The
// site serves error pages and truncated transfers under an archive content
// type, so the bytes themselves are the only reliable signal.
func validatePayload(p Payload) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if _, err := zip.NewReader(bytes.NewReader(p.Data), int64(len(p.Data))); err != nil {
		return fmt.Errorf("corrupt archive: %w", err)
	}
	return nil
}

func (f *Fetcher) recordFailure(ctx context.Context, listing place.Listing) {
	f.markArchive(ctx, listing, place.ArchiveFailed)
	if err := f.store.MarkListingStatus(ctx, listing.ID, place.ListingFailed); err != nil {
		f.logger.Error("mark listing failed",
			zap.String("external_id", listing.ExternalID),
			zap.Error(err),
		)
	}
}

func (f *Fetcher) markArchive(ctx context.Context, listing place.Listing, status place.ArchiveStatus) {
	_, err := f.store.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindDCE,
		Status:    status,
		FetchedAt: f.clock.Now(),
	})
	if err != nil {
		f.logger.Error("record archive status",
			zap.String("external_id", listing.ExternalID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// ArchiveName builds the stored blob name for a bundle:
// {external id}.{original stem}.{kind}.zip. The original file name is reduced
// to its stem so re-fetches land on the same path.
func ArchiveName(externalID, fileName string, kind place.ArchiveKind) string {
	stem := strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
	if stem == "" || stem == "." {
		stem = "archive"
	}
	return fmt.Sprintf("%s.%s.%s.zip", externalID, stem, kind)
}
