package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/metrics"
)

func newTestRouter(t *testing.T) (http.Handler, *database.DBService) {
	t.Helper()
	store, err := database.NewDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	im := ingestion.NewImporter(ingestion.Config{BatchSize: 100, FlushInterval: time.Hour, Workers: 1}, store, m, zerolog.Nop())
	h := NewHandler(zerolog.Nop(), store, im, m, Options{})
	return h.Router(), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rr, &body)
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestReadyz(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	bare := NewHandler(zerolog.Nop(), nil, nil, nil, Options{}).Router()
	rr = do(t, bare, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "db_unavailable", errorCode(t, rr))

	rr = do(t, bare, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodGet, "/api/v1/sets/abc", "")

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `path="/api/v1/sets/{id}"`)
	assert.NotContains(t, rr.Body.String(), `path="/api/v1/sets/abc"`)
}

func TestSetLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/api/v1/sets",
		`{"id":"as64500","name":"AS64500","prefixes":["10.0.0.0/8","192.168.0.0/16","2001:db8::/32","10.1.2.3/8"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Set    database.PrefixSet `json:"set"`
		Report ingestion.Report   `json:"report"`
	}
	decode(t, rr, &created)
	assert.Equal(t, "as64500", created.Set.ID)
	assert.Equal(t, "text", created.Set.Source)
	assert.Equal(t, 3, created.Set.PrefixCount)
	assert.Equal(t, 3, created.Report.Added)

	rr = do(t, h, http.MethodGet, "/api/v1/sets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sets []database.PrefixSet
	decode(t, rr, &sets)
	require.Len(t, sets, 1)

	rr = do(t, h, http.MethodGet, "/api/v1/sets/as64500", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var detail struct {
		ID    string            `json:"id"`
		Stats database.SetStats `json:"stats"`
	}
	decode(t, rr, &detail)
	assert.Equal(t, "as64500", detail.ID)
	assert.Equal(t, 2, detail.Stats.V4Prefixes)
	assert.Equal(t, 1, detail.Stats.V6Prefixes)

	rr = do(t, h, http.MethodGet, "/api/v1/sets/as64500/prefixes?family=4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Prefixes []string `json:"prefixes"`
	}
	decode(t, rr, &listed)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, listed.Prefixes)

	rr = do(t, h, http.MethodDelete, "/api/v1/sets/as64500", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/sets/as64500", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", errorCode(t, rr))
}

func TestCreateSetFromRIPEPayload(t *testing.T) {
	h, _ := newTestRouter(t)

	payload, err := json.Marshal(`{"data":{"prefixes":[{"prefix":"193.0.0.0/21"}]}}`)
	require.NoError(t, err)
	rr := do(t, h, http.MethodPost, "/api/v1/sets", `{"name":"ripe","payload":`+string(payload)+`}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Set database.PrefixSet `json:"set"`
	}
	decode(t, rr, &created)
	assert.NotEmpty(t, created.Set.ID)
	assert.Equal(t, "ripe", created.Set.Source)
	assert.Equal(t, 1, created.Set.PrefixCount)
}

func TestCreateSetValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := map[string]string{
		"unknown field":  `{"name":"x","prefixes":["10.0.0.0/8"],"nope":1}`,
		"no data":        `{"name":"x"}`,
		"both":           `{"prefixes":["10.0.0.0/8"],"payload":"10.0.0.0/8"}`,
		"unknown source": `{"source":"bgp.tools","payload":"10.0.0.0/8"}`,
		"trailing data":  `{"prefixes":["10.0.0.0/8"]} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/sets", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "validation_failed", errorCode(t, rr))
		})
	}

	rr := do(t, h, http.MethodPost, "/api/v1/sets", `{"source":"routeviews","payload":"[\"10.0.0.0/8\""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListSetsParams(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/api/v1/sets?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/sets?offset=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/sets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/v1/sets/missing/prefixes?family=5", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/sets/missing/prefixes", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAnalysisAndDiff(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/api/v1/sets", `{"id":"a","prefixes":["10.0.0.0/8","192.168.0.0/16"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodPost, "/api/v1/sets", `{"id":"b","prefixes":["10.0.0.0/8","172.16.0.0/12"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/v1/sets/a/analysis", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var report struct {
		SetID   string `json:"set_id"`
		Lengths []struct {
			Bits  int `json:"bits"`
			Count int `json:"count"`
		} `json:"lengths"`
	}
	decode(t, rr, &report)
	assert.Equal(t, "a", report.SetID)
	assert.Len(t, report.Lengths, 2)

	rr = do(t, h, http.MethodGet, "/api/v1/diff?from=a&to=b", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"from":"a","to":"b","added":["172.16.0.0/12"],"removed":["192.168.0.0/16"],"common":1}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/v1/diff?from=a", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/v1/diff?from=a&to=missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/v1/sets/missing/analysis", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
