// Package discovery paginates the source listing index, deduplicates against
// the store, and records newly found listings. All progress is committed
// page by page, so an interrupted run resumes from the persisted frontier.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/policy"
	"github.com/openplace/placecrawl/internal/telemetry"
)

// ErrNoMorePages is returned by a Source when the listing index is exhausted.
// It is a clean stop, not a page failure.
var ErrNoMorePages = errors.New("no more result pages")

// FoundListing is one notice link extracted from a listing index page.
type FoundListing struct {
	ExternalID   string
	URL          string
	OrgAcronym   string
	Reference    string
	Title        string
	Description  string
	Organization string
}

// Page is one fetched listing index page.
type Page struct {
	Number   int
	Listings []FoundListing
	HasNext  bool
}

// Source fetches listing index pages from the marketplace.
type Source interface {
	FetchPage(ctx context.Context, page int) (Page, error)
}

// Store is the slice of the state store discovery needs.
type Store interface {
	Frontier(ctx context.Context) (int, error)
	AdvanceFrontier(ctx context.Context, page int, now time.Time) error
	KnownExternalIDs(ctx context.Context, ids []string) (map[string]bool, error)
	UpsertListing(ctx context.Context, l place.Listing) (place.Listing, bool, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Options control one discovery run.
type Options struct {
	// MaxPages bounds the number of index pages scanned; <= 0 means scan
	// until the source reports no further pages.
	MaxPages int
	// Dedup filters out external ids already present in the store.
	Dedup bool
	// Resume starts at the page after the persisted frontier instead of
	// page 1.
	Resume bool
}

// Engine runs the resumable page-by-page discovery loop.
type Engine struct {
	source  Source
	store   Store
	clock   Clock
	retry   *policy.ExponentialRetryPolicy
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs an Engine. A nil limiter disables politeness waits and a nil
// retry policy falls back to the defaults.
func New(source Source, store Store, clock Clock, retry *policy.ExponentialRetryPolicy, limiter *rate.Limiter, logger *zap.Logger) *Engine {
	if retry == nil {
		retry = policy.NewExponentialRetryPolicy()
	}
	return &Engine{
		source:  source,
		store:   store,
		clock:   clock,
		retry:   retry,
		limiter: limiter,
		logger:  logger,
	}
}

// Discover scans listing index pages and upserts new listings. The frontier
// advances only after a page is fully committed, and never past a failed
// page, so a rerun retries exactly the work that did not complete. Page
// failures land in the report; only store-level failures abort the run.
func (e *Engine) Discover(ctx context.Context, opts Options) (place.DiscoveryReport, error) {
	start := 1
	if opts.Resume {
		frontier, err := e.store.Frontier(ctx)
		if err != nil {
			return place.DiscoveryReport{}, fmt.Errorf("read frontier: %w", err)
		}
		start = frontier + 1
	}

	report := place.DiscoveryReport{StartPage: start}
	frontierBlocked := false

	for pageNo := start; ; pageNo++ {
		if opts.MaxPages > 0 && pageNo-start >= opts.MaxPages {
			break
		}
		if err := e.wait(ctx); err != nil {
			return report, err
		}

		page, err := e.fetchPage(ctx, pageNo)
		if err != nil {
			if errors.Is(err, ErrNoMorePages) {
				break
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			e.logger.Warn("page failed after retries",
				zap.Int("page", pageNo),
				zap.Error(err),
			)
			telemetry.ObservePage("failed")
			report.FailedPages = append(report.FailedPages, place.PageFailure{
				Page:   pageNo,
				Reason: err.Error(),
			})
			report.PagesScanned++
			frontierBlocked = true
			continue
		}

		found, known, err := e.recordPage(ctx, pageNo, page, opts.Dedup)
		if err != nil {
			return report, err
		}
		report.PagesScanned++
		report.ListingsFound += found
		report.ListingsKnown += known
		telemetry.ObservePage("ok")
		telemetry.ObserveListings(found)

		if !frontierBlocked {
			if err := e.store.AdvanceFrontier(ctx, pageNo, e.clock.Now()); err != nil {
				return report, fmt.Errorf("advance frontier: %w", err)
			}
			report.Frontier = pageNo
		}

		e.logger.Info("page discovered",
			zap.Int("page", pageNo),
			zap.Int("new", found),
			zap.Int("known", known),
			zap.Bool("has_next", page.HasNext),
		)

		if !page.HasNext {
			break
		}
	}

	if report.Frontier == 0 {
		frontier, err := e.store.Frontier(ctx)
		if err != nil {
			return report, fmt.Errorf("read frontier: %w", err)
		}
		report.Frontier = frontier
	}
	return report, nil
}

func (e *Engine) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter == nil {
		return nil
	}
	start := e.clock.Now()
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := e.clock.Now().Sub(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(waited)
	}
	return nil
}

func (e *Engine) fetchPage(ctx context.Context, pageNo int) (Page, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := e.source.FetchPage(ctx, pageNo)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if errors.Is(err, ErrNoMorePages) {
			break
		}
		if !e.retry.ShouldRetry(err, attempt+1) {
			break
		}
		backoff := e.retry.Backoff(attempt)
		e.logger.Debug("retrying page fetch",
			zap.Int("page", pageNo),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return Page{}, lastErr
}

// recordPage upserts the page's listings. Within a page the order does not
// matter: rows key on unique external id.
func (e *Engine) recordPage(ctx context.Context, pageNo int, page Page, dedup bool) (found, known int, err error) {
	candidates := page.Listings
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	var seen map[string]bool
	if dedup {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ExternalID
		}
		seen, err = e.store.KnownExternalIDs(ctx, ids)
		if err != nil {
			return 0, 0, fmt.Errorf("dedup page %d: %w", pageNo, err)
		}
	}

	for _, c := range candidates {
		if seen[c.ExternalID] {
			known++
			continue
		}
		_, created, err := e.store.UpsertListing(ctx, place.Listing{
			ExternalID:   c.ExternalID,
			Page:         pageNo,
			URL:          c.URL,
			Reference:    c.Reference,
			Title:        c.Title,
			Description:  c.Description,
			Organization: c.Organization,
			OrgAcronym:   c.OrgAcronym,
			Status:       place.ListingDiscovered,
			DiscoveredAt: e.clock.Now(),
		})
		if err != nil {
			return found, known, fmt.Errorf("record listing %s: %w", c.ExternalID, err)
		}
		if created {
			found++
		} else {
			known++
		}
	}
	return found, known, nil
}
