package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://archiveofourown.org/works/search", "archiveofourown.org"},
		{"standard https", "https://ArchiveOfOurOwn.org/works", "archiveofourown.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchPagesTotal == nil || fetchWorksEmittedTotal == nil || indexLinesTotal == nil || indexBulkRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	beforePages := testutil.ToFloat64(fetchPagesTotal.WithLabelValues("metrics-test.local", StatusOK))
	ObservePage("https://metrics-test.local/works/search?page=1", StatusOK, 2048, 150*time.Millisecond)
	if got := testutil.ToFloat64(fetchPagesTotal.WithLabelValues("metrics-test.local", StatusOK)); got != beforePages+1 {
		t.Errorf("expected page counter to increase by 1, got %v -> %v", beforePages, got)
	}

	beforeEmitted := testutil.ToFloat64(fetchWorksEmittedTotal)
	ObserveWorksEmitted(20)
	if got := testutil.ToFloat64(fetchWorksEmittedTotal); got != beforeEmitted+20 {
		t.Errorf("expected emitted counter to increase by 20, got %v -> %v", beforeEmitted, got)
	}

	SetLastCompletedPage(12)
	if got := testutil.ToFloat64(fetchLastCompletedPage); got != 12 {
		t.Errorf("expected last completed page 12, got %v", got)
	}

	beforeSkipped := testutil.ToFloat64(indexLinesTotal.WithLabelValues(StatusSkipped))
	ObserveLine(StatusSkipped)
	if got := testutil.ToFloat64(indexLinesTotal.WithLabelValues(StatusSkipped)); got != beforeSkipped+1 {
		t.Errorf("expected skipped counter to increase by 1, got %v -> %v", beforeSkipped, got)
	}

	beforeDocs := testutil.ToFloat64(indexDocumentsUpsertTotal)
	ObserveBulk("bleve", StatusOK, 5, 10*time.Millisecond)
	ObserveBulk("bleve", StatusError, 5, 10*time.Millisecond)
	if got := testutil.ToFloat64(indexDocumentsUpsertTotal); got != beforeDocs+5 {
		t.Errorf("expected only successful bulks to count documents, got %v -> %v", beforeDocs, got)
	}
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	ObserveWorksEmitted(1)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "fandom_fetch_works_emitted_total") {
		t.Errorf("expected emitted counter in /metrics output")
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", resp.StatusCode)
	}
}

func TestServerLifecycle(t *testing.T) {
	s, err := Start("", zap.NewNop())
	if err != nil || s != nil {
		t.Fatalf("expected nil server for empty addr, got %v, %v", s, err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil server shutdown should be a no-op: %v", err)
	}

	s, err = Start("127.0.0.1:0", zap.NewNop())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://archiveofourown.org", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

func TestMiddlewareCountsRequestsByRoute(t *testing.T) {
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/healthz", "200"))
	for range 2 {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/healthz", "200")); got != before+2 {
		t.Errorf("expected two healthz requests counted, got %v -> %v", before, got)
	}
}
