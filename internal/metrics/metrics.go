// Package metrics exposes Prometheus collectors for the fetch and index runs.
package metrics

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page and line outcomes used as label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var (
	fetchPagesTotal           *prometheus.CounterVec
	fetchBytesTotal           *prometheus.CounterVec
	fetchPageDurationSeconds  *prometheus.HistogramVec
	fetchWorksEmittedTotal    prometheus.Counter
	fetchLastCompletedPage    prometheus.Gauge
	fetchPacingDelaysSeconds  prometheus.Histogram
	indexLinesTotal           *prometheus.CounterVec
	indexBulkRequestsTotal    *prometheus.CounterVec
	indexBulkDurationSeconds  prometheus.Histogram
	indexDocumentsUpsertTotal prometheus.Counter
	httpRequestsTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fandom_fetch_pages_total",
				Help: "Total number of listing pages requested, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fandom_fetch_bytes_total",
				Help: "Total number of listing bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchPageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fandom_fetch_page_duration_seconds",
				Help:    "Histogram of listing page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		fetchWorksEmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fandom_fetch_works_emitted_total",
				Help: "Total number of work records written to the output stream.",
			},
		)

		fetchLastCompletedPage = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fandom_fetch_last_completed_page",
				Help: "Number of the last listing page whose works were fully written.",
			},
		)

		fetchPacingDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fandom_fetch_pacing_delay_seconds",
				Help:    "Histogram of pauses taken between listing page requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		indexLinesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fandom_index_lines_total",
				Help: "Total number of input lines read by the indexer, labeled by status.",
			},
			[]string{"status"},
		)

		indexBulkRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fandom_index_bulk_requests_total",
				Help: "Total number of bulk upsert requests, labeled by backend and status.",
			},
			[]string{"backend", "status"},
		)

		indexBulkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fandom_index_bulk_duration_seconds",
				Help:    "Histogram of bulk upsert latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		indexDocumentsUpsertTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fandom_index_documents_upserted_total",
				Help: "Total number of documents upserted into the store.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fandom_metrics_http_requests_total",
				Help: "Requests served by the metrics listener, labeled by route and code.",
			},
			[]string{"route", "code"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObservePage records one listing page request.
func ObservePage(rawURL string, status string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	if duration > 0 {
		fetchPageDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObserveWorksEmitted adds n records to the emitted counter.
func ObserveWorksEmitted(n int) {
	Init()
	fetchWorksEmittedTotal.Add(float64(n))
}

// SetLastCompletedPage records the resume point of the current run.
func SetLastCompletedPage(page int) {
	Init()
	fetchLastCompletedPage.Set(float64(page))
}

// ObservePacingDelay records a pause between page requests.
func ObservePacingDelay(duration time.Duration) {
	Init()
	fetchPacingDelaysSeconds.Observe(duration.Seconds())
}

// ObserveLine records the outcome of one input line.
func ObserveLine(status string) {
	Init()
	indexLinesTotal.WithLabelValues(status).Inc()
}

// ObserveBulk records one bulk request and, on success, its documents.
func ObserveBulk(backend string, status string, docs int, duration time.Duration) {
	Init()
	indexBulkRequestsTotal.WithLabelValues(backend, status).Inc()
	indexBulkDurationSeconds.Observe(duration.Seconds())
	if status == StatusOK {
		indexDocumentsUpsertTotal.Add(float64(docs))
	}
}

// ObserveHTTPRequest records one request served by the metrics listener.
func ObserveHTTPRequest(route string, status int) {
	Init()
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
