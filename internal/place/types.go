package place

import (
	"time"
)

// ListingStatus represents the lifecycle state of a discovered listing.
type ListingStatus string

// Listing status values persisted in the store. Listings are never deleted by
// the pipeline, only transitioned.
const (
	ListingDiscovered ListingStatus = "discovered"
	ListingFetched    ListingStatus = "fetched"
	ListingFailed     ListingStatus = "failed"
)

// ArchiveStatus represents the download state of a listing's document bundle.
type ArchiveStatus string

// Archive status values. A re-fetch overwrites status, never identity.
const (
	ArchivePending  ArchiveStatus = "pending"
	ArchiveFetched  ArchiveStatus = "fetched"
	ArchiveFailed   ArchiveStatus = "failed"
	ArchiveRetrying ArchiveStatus = "retrying"
)

// DocumentStatus represents the extraction state of one file in an archive.
type DocumentStatus string

// Document status values.
const (
	DocumentPending   DocumentStatus = "pending"
	DocumentExtracted DocumentStatus = "extracted"
	DocumentFailed    DocumentStatus = "failed"
)

// ArchiveKind classifies the document bundles PLACE attaches to a listing.
type ArchiveKind string

// Archive kinds observed on the source site. KindDCE is the consultation file
// bundle and is the default for single-bundle listings.
const (
	KindDCE        ArchiveKind = "dce"
	KindReglement  ArchiveKind = "reglement"
	KindAvis       ArchiveKind = "avis"
	KindComplement ArchiveKind = "complement"
)

// LabelKind is the vocabulary of entity annotations. The set is open: external
// recognition runs may emit kinds beyond the fixed three.
type LabelKind string

// Fixed label kinds produced by the recognition model.
const (
	LabelServiceCategory LabelKind = "service_category"
	LabelContractValue   LabelKind = "contract_value"
	LabelDeadline        LabelKind = "deadline"
)

// Listing is one procurement notice discovered on the source site.
type Listing struct {
	ID           int64         `json:"id"`
	ExternalID   string        `json:"external_id"`
	Page         int           `json:"page"`
	URL          string        `json:"url"`
	Reference    string        `json:"reference"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Organization string        `json:"organization"`
	OrgAcronym   string        `json:"org_acronym"`
	Status       ListingStatus `json:"status"`
	DiscoveredAt time.Time     `json:"discovered_at"`
}

// Archive is the downloaded document bundle for a listing. One listing owns at
// most one current archive per kind.
type Archive struct {
	ID        int64         `json:"id"`
	ListingID int64         `json:"listing_id"`
	Kind      ArchiveKind   `json:"kind"`
	Path      string        `json:"path"`
	Checksum  string        `json:"checksum"`
	SizeBytes int64         `json:"size_bytes"`
	Status    ArchiveStatus `json:"status"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Document is one text unit extracted from a file inside an archive. Content
// stays empty until extraction succeeds.
type Document struct {
	ID          int64          `json:"id"`
	ArchiveID   int64          `json:"archive_id"`
	FileName    string         `json:"file_name"`
	Content     string         `json:"content,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Status      DocumentStatus `json:"status"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Reason      string         `json:"reason,omitempty"`
}

// Label is one entity annotation attached to a document. Labels are append
// only: a later run never deletes earlier rows, and (document, kind, run) is
// unique.
type Label struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Kind       LabelKind `json:"kind"`
	Value      string    `json:"value"`
	Span       string    `json:"span,omitempty"`
	Confidence float64   `json:"confidence"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}
