// Package telemetry defines the Prometheus metrics incremented by pipeline
// stages. Stages run as short-lived CLI invocations, so the counters are
// process-local and surface through the default registry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecrawl_pages_total",
			Help: "Listing index pages processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	listingsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placecrawl_listings_discovered_total",
			Help: "Newly discovered listings recorded in the store.",
		},
	)

	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecrawl_archives_total",
			Help: "Archive downloads, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecrawl_documents_total",
			Help: "Document extractions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	labelsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placecrawl_labels_ingested_total",
			Help: "Labels committed by ingestion runs.",
		},
	)

	pageFetchDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placecrawl_page_fetch_delay_seconds",
			Help:    "Delay introduced by the politeness rate limiter.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// ObservePage records the outcome of one listing page.
func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveListings records newly discovered listings.
func ObserveListings(n int) {
	listingsDiscoveredTotal.Add(float64(n))
}

// ObserveArchive records the outcome of one archive download.
func ObserveArchive(outcome string) {
	archivesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDocument records the outcome of one document extraction.
func ObserveDocument(outcome string) {
	documentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLabels records labels committed by an ingestion run.
func ObserveLabels(n int) {
	labelsIngestedTotal.Add(float64(n))
}

// ObserveRateLimitDelay records time spent waiting on the politeness limiter.
func ObserveRateLimitDelay(d time.Duration) {
	pageFetchDelaySeconds.Observe(d.Seconds())
}
