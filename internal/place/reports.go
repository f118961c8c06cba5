package place

// PageFailure records one listing page that exhausted its retries during
// discovery. The frontier never advances past a failed page.
type PageFailure struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// DiscoveryReport summarizes one discovery run.
type DiscoveryReport struct {
	StartPage     int           `json:"start_page"`
	PagesScanned  int           `json:"pages_scanned"`
	ListingsFound int           `json:"listings_found"`
	ListingsKnown int           `json:"listings_known"`
	Frontier      int           `json:"frontier"`
	FailedPages   []PageFailure `json:"failed_pages,omitempty"`
}

// Failed reports whether any page was left unrecovered.
func (r DiscoveryReport) Failed() bool { return len(r.FailedPages) > 0 }

// FetchFailure records one listing whose archive download ultimately failed.
type FetchFailure struct {
	ListingID  int64  `json:"listing_id"`
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// FetchReport summarizes one fetch-archives run.
type FetchReport struct {
	Attempted int            `json:"attempted"`
	Fetched   int            `json:"fetched"`
	Failures  []FetchFailure `json:"failures,omitempty"`
}

// Failed reports whether any archive ultimately failed after retries.
func (r FetchReport) Failed() bool { return len(r.Failures) > 0 }

// ExtractionReport summarizes one extract-markdown run. Failures are per file
// and never fail the owning archive as a whole.
type ExtractionReport struct {
	ArchivesScanned int      `json:"archives_scanned"`
	Extracted       int      `json:"extracted"`
	Skipped         int      `json:"skipped"`
	Failed          int      `json:"failed"`
	FailedFiles     []string `json:"failed_files,omitempty"`
}

// ExportManifest describes the artifacts written by one export run. File names
// are deterministic so repeated exports overwrite rather than accumulate.
type ExportManifest struct {
	Bundle    string            `json:"bundle"`
	Tables    map[string]string `json:"tables"`
	Archives  int               `json:"archives"`
	Listings  int               `json:"listings"`
	Documents int               `json:"documents"`
}

// IngestReport summarizes one label ingestion call.
type IngestReport struct {
	RunID      string   `json:"run_id"`
	Batches    int      `json:"batches"`
	Inserted   int      `json:"inserted"`
	Deduped    int      `json:"deduped"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// Failed reports whether any batch entry could not be resolved.
func (r IngestReport) Failed() bool { return len(r.Unresolved) > 0 }
