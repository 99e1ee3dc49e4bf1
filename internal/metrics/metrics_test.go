package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	m.AddPrefixes(4, 10)
	m.IncBatch()
	m.ObserveLayout(3)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.AddPrefixes(4, 3)
	m.AddPrefixes(6, 2)
	m.AddPrefixes(6, 0)
	m.IncBatch()
	m.IncImportError()
	m.ObserveImportDuration(250 * time.Millisecond)
	m.ObserveLayout(75)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		`hilbertmap_http_requests_total{method="GET",path="/readyz",status="200"} 1`,
		`hilbertmap_prefixes_imported_total{family="4"} 3`,
		`hilbertmap_prefixes_imported_total{family="6"} 2`,
		"hilbertmap_import_batches_total 1",
		"hilbertmap_import_errors_total 1",
		"hilbertmap_import_duration_seconds_count 1",
		"hilbertmap_layout_blocks_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body; body=%s", want, body)
		}
	}
}
