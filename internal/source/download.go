package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openplace/placecrawl/internal/fetcher"
	"github.com/openplace/placecrawl/internal/place"
)

// acceptable payload content types. A few bundles arrive as octet-stream even
// though they are zip files.
var archiveContentTypes = map[string]bool{
	"application/zip":          true,
	"application/octet-stream": true,
}

// DownloadArchive fetches the document bundle of the given kind for a
// listing. The DCE bundle requires walking the anonymous-request form flow;
// the other kinds are direct links. Returns the payload and its original file
// name.
func (c *Client) DownloadArchive(ctx context.Context, listing place.Listing, kind place.ArchiveKind) (fetcher.Payload, error) {
	resp, err := c.do(ctx, http.MethodGet, listing.URL, nil)
	if err != nil {
		return fetcher.Payload{}, fmt.Errorf("load detail page: %w", err)
	}
	links, err := documentLinks(resp.body)
	if err != nil {
		return fetcher.Payload{}, err
	}
	href, ok := links[string(kind)]
	if !ok {
		return fetcher.Payload{}, fmt.Errorf("listing %s has no %s bundle: %w", listing.ExternalID, kind, place.ErrNotFound)
	}

	if kind == place.KindDCE {
		return c.downloadDCE(ctx, listing)
	}
	return c.downloadDirect(ctx, href)
}

// downloadDirect fetches a reglement/avis/complement link.
func (c *Client) downloadDirect(ctx context.Context, href string) (fetcher.Payload, error) {
	url := href
	if strings.HasPrefix(href, "/") {
		url = c.cfg.BaseURL + href
	}
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetcher.Payload{}, err
	}
	return payloadFromResponse(url, resp)
}

// downloadDCE walks the PRADO request form: load the request page, accept the
// anonymous download option, then trigger the complete download.
func (c *Client) downloadDCE(ctx context.Context, listing place.Listing) (fetcher.Payload, error) {
	url := fmt.Sprintf(
		"%s/index.php?page=Entreprise.EntrepriseDemandeTelechargementDce&id=%s&orgAcronyme=%s",
		c.cfg.BaseURL, listing.ExternalID, listing.OrgAcronym,
	)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetcher.Payload{}, fmt.Errorf("load download form: %w", err)
	}
	state, ok := extractPageState(resp.body)
	if !ok {
		return fetcher.Payload{}, fmt.Errorf("no page state on download form")
	}

	resp, err = c.do(ctx, http.MethodPost, url, map[string]string{
		"PRADO_PAGESTATE":       state,
		"PRADO_POSTBACK_TARGET": postbackValidate,
		radioGroup:              radioAnonymous,
	})
	if err != nil {
		return fetcher.Payload{}, fmt.Errorf("accept download terms: %w", err)
	}
	state, ok = extractPageState(resp.body)
	if !ok {
		return fetcher.Payload{}, fmt.Errorf("no page state after accepting terms")
	}

	resp, err = c.do(ctx, http.MethodPost, url, map[string]string{
		"PRADO_PAGESTATE":       state,
		"PRADO_POSTBACK_TARGET": postbackDownload,
	})
	if err != nil {
		return fetcher.Payload{}, fmt.Errorf("trigger download: %w", err)
	}
	return payloadFromResponse(url, resp)
}

func payloadFromResponse(url string, resp response) (fetcher.Payload, error) {
	contentType := resp.headers.Get("Content-Type")
	if semicolon := strings.Index(contentType, ";"); semicolon >= 0 {
		contentType = contentType[:semicolon]
	}
	if contentType != "" && !archiveContentTypes[strings.TrimSpace(contentType)] {
		return fetcher.Payload{}, fmt.Errorf("unexpected content type %q on %s", contentType, url)
	}

	name, ok := attachmentFilename(resp.headers.Get("Content-Disposition"))
	if !ok {
		return fetcher.Payload{}, fmt.Errorf("no attachment file name on %s", url)
	}
	if len(resp.body) == 0 {
		return fetcher.Payload{}, fmt.Errorf("empty payload on %s", url)
	}
	return fetcher.Payload{FileName: name, Data: resp.body}, nil
}
