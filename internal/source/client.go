// Package source adapts the PLACE marketplace to the pipeline interfaces. The
// site is a server-rendered PRADO application: search results paginate via
// stateful postbacks, and document downloads walk a short form flow before the
// payload streams back. The client drives both with a Colly collector so
// cookie and politeness handling stay in one place.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openplace/placecrawl/internal/discovery"
	"github.com/openplace/placecrawl/internal/place"
)

// Config captures the parameters of the marketplace client.
type Config struct {
	SearchURL string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	PageSize  int
	// DetailWorkers bounds concurrent detail-page fetches within one results
	// page. Pagination itself stays sequential.
	DetailWorkers int
}

// Client fetches search result pages and consultation bundles. Pagination is
// inherently sequential; FetchPage walks the postback chain forward and
// restarts the session when asked for an earlier page.
type Client struct {
	cfg       Config
	collector *colly.Collector
	logger    *zap.Logger

	mu        sync.Mutex
	pageState string
	current   int
	lastBody  []byte
	prevLinks []string
}

// response captures one HTTP exchange driven through the collector.
type response struct {
	status  int
	body    []byte
	headers http.Header
}

// NewClient builds a marketplace client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search url is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 600 * time.Second
	}
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = 1
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.Timeout)
	// The PRADO flow relies on inspecting each response as-is; a redirect
	// would lose the page state token.
	c.SetRedirectHandler(func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Client{
		cfg:       cfg,
		collector: c,
		logger:    logger,
	}, nil
}

// do drives one request through a collector clone. Clones share the cookie
// jar, which keeps the PRADO session alive across calls while letting each
// call own its response callbacks.
func (c *Client) do(ctx context.Context, method, url string, form map[string]string) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}

	col := c.collector.Clone()
	var resp response
	col.OnResponse(func(r *colly.Response) {
		resp.status = r.StatusCode
		resp.body = r.Body
		if r.Headers != nil {
			resp.headers = *r.Headers
		}
	})
	col.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			resp.status = r.StatusCode
		}
	})

	var err error
	if method == http.MethodPost {
		err = col.Post(url, form)
	} else {
		err = col.Visit(url)
	}
	if err != nil {
		return resp, &place.TransientFetchError{URL: url, Err: err}
	}
	return resp, nil
}

// reset opens a fresh search session: fetch the landing page, capture the
// page state, and switch the result list to the configured page size.
func (c *Client) reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.cfg.SearchURL, nil)
	if err != nil {
		return fmt.Errorf("open search session: %w", err)
	}
	state, ok := extractPageState(resp.body)
	if !ok {
		return fmt.Errorf("no page state on search landing page")
	}

	resp, err = c.do(ctx, http.MethodPost, c.cfg.SearchURL, map[string]string{
		"PRADO_PAGESTATE":       state,
		"PRADO_POSTBACK_TARGET": postbackPageSize,
		postbackPageSize:        strconv.Itoa(c.cfg.PageSize),
	})
	if err != nil {
		return fmt.Errorf("set result page size: %w", err)
	}
	state, ok = extractPageState(resp.body)
	if !ok {
		return fmt.Errorf("no page state after page size postback")
	}

	c.pageState = state
	c.current = 1
	c.lastBody = resp.body
	c.prevLinks = extractConsultationLinks(resp.body)
	return nil
}

// nextPage advances the session one results page. Exhaustion shows up as an
// HTTP 500, an unchanged page state, or an unchanged link list.
func (c *Client) nextPage(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.SearchURL, map[string]string{
		"PRADO_PAGESTATE":       c.pageState,
		"PRADO_POSTBACK_TARGET": postbackNextPage,
	})
	if err != nil {
		if resp.status == http.StatusInternalServerError {
			return discovery.ErrNoMorePages
		}
		return err
	}

	state, ok := extractPageState(resp.body)
	if !ok || state == c.pageState {
		return discovery.ErrNoMorePages
	}
	links := extractConsultationLinks(resp.body)
	if sameLinks(links, c.prevLinks) {
		return discovery.ErrNoMorePages
	}

	c.pageState = state
	c.current++
	c.lastBody = resp.body
	c.prevLinks = links
	return nil
}

// FetchPage returns the given results page with full listing metadata. Asking
// for a page at or before the current session position restarts the session
// from page 1; pages beyond it are reached by walking the postback chain.
func (c *Client) FetchPage(ctx context.Context, page int) (discovery.Page, error) {
	if page < 1 {
		return discovery.Page{}, fmt.Errorf("page must be >= 1, got %d", page)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == 0 || page <= c.current {
		if err := c.reset(ctx); err != nil {
			return discovery.Page{}, err
		}
	}
	for c.current < page {
		if err := c.nextPage(ctx); err != nil {
			return discovery.Page{}, err
		}
	}

	type target struct {
		link       string
		externalID string
		orgAcronym string
	}
	var targets []target
	for _, link := range extractConsultationLinks(c.lastBody) {
		externalID, orgAcronym, ok := parseConsultationLink(link)
		if !ok {
			continue
		}
		targets = append(targets, target{link: link, externalID: externalID, orgAcronym: orgAcronym})
	}

	// Detail pages are independent GETs; fetch them concurrently while
	// keeping page order in the result.
	listings := make([]discovery.FoundListing, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.DetailWorkers)
	for idx, t := range targets {
		idx, t := idx, t
		g.Go(func() error {
			found, err := c.fetchListing(gctx, t.link, t.externalID, t.orgAcronym)
			if err != nil {
				return fmt.Errorf("listing %s: %w", t.externalID, err)
			}
			listings[idx] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return discovery.Page{}, err
	}

	return discovery.Page{Number: page, Listings: listings, HasNext: true}, nil
}

// fetchListing loads one consultation detail page and parses its metadata.
func (c *Client) fetchListing(ctx context.Context, link, externalID, orgAcronym string) (discovery.FoundListing, error) {
	resp, err := c.do(ctx, http.MethodGet, link, nil)
	if err != nil {
		return discovery.FoundListing{}, err
	}
	info, err := parseListingInfo(resp.body)
	if err != nil {
		return discovery.FoundListing{}, fmt.Errorf("parse detail page: %w", err)
	}
	return discovery.FoundListing{
		ExternalID:   externalID,
		URL:          link,
		OrgAcronym:   orgAcronym,
		Reference:    info.Reference,
		Title:        info.Title,
		Description:  info.Description,
		Organization: info.Organization,
	}, nil
}

func sameLinks(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
