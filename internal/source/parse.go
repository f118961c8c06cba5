package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// listingInfo is the metadata block of a consultation detail page.
type listingInfo struct {
	Reference    string
	Title        string
	Description  string
	Organization string
}

// detail page field labels, in the order the site renders them.
var detailFields = []struct {
	label string
	set   func(*listingInfo, string)
}{
	{"Référence :", func(i *listingInfo, v string) { i.Reference = v }},
	{"Intitulé :", func(i *listingInfo, v string) { i.Title = v }},
	{"Objet :", func(i *listingInfo, v string) { i.Description = v }},
	{"Organisme :", func(i *listingInfo, v string) { i.Organization = v }},
}

// parseListingInfo extracts the reference, title, description, and
// organization from a consultation detail page.
func parseListingInfo(body []byte) (listingInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return listingInfo{}, fmt.Errorf("parse html: %w", err)
	}

	sections := doc.Find(".col-md-10.text-justify")
	var info listingInfo
	for idx, field := range detailFields {
		section := sections.Eq(idx)
		label := strings.TrimSpace(section.Find("label").First().Text())
		if label != field.label {
			return listingInfo{}, fmt.Errorf("expected label %q at section %d, found %q", field.label, idx, label)
		}
		value := strings.TrimSpace(section.Find("div span").First().Text())
		if value == "" {
			return listingInfo{}, fmt.Errorf("empty value for label %q", field.label)
		}
		field.set(&info, value)
	}
	return info, nil
}

// extractConsultationLinks returns the consultation detail hrefs on a results
// page, in document order.
func extractConsultationLinks(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if linkRegexp.MatchString(href) {
			links = append(links, href)
		}
	})
	return links
}

// parseConsultationLink splits a consultation href into its external id and
// organization acronym.
func parseConsultationLink(href string) (externalID, orgAcronym string, ok bool) {
	m := linkRegexp.FindStringSubmatch(href)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// documentLinks classifies the download links on a detail page by the anchor
// id the site assigns them. The buyer DUME carries no useful content and is
// skipped.
func documentLinks(body []byte) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	tab := doc.Find("#pub")
	if tab.Length() == 0 {
		return nil, fmt.Errorf("no publication tab on detail page")
	}

	links := make(map[string]string)
	tab.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		id, hasID := sel.Attr("id")
		if !hasID {
			return
		}
		switch id {
		case "linkDownloadDce":
			links["dce"] = href
		case "linkDownloadReglement":
			links["reglement"] = href
		case "linkDownloadAvis":
			links["avis"] = href
		case "linkDownloadComplement":
			links["complement"] = href
		case "linkDownloadDume":
			// skipped: buyer DUME has no useful content
		}
	})
	return links, nil
}

// extractPageState pulls the PRADO_PAGESTATE token out of a page body.
func extractPageState(body []byte) (string, bool) {
	m := pageStateRegexp.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// attachmentFilename parses the file name out of a Content-Disposition
// header.
func attachmentFilename(header string) (string, bool) {
	m := attachmentRegexp.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}
	return m[1], true
}
