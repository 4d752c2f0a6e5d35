package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/report"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, fakePinger{}, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, NewServer(nil, fakePinger{err: errors.New("down")}, nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_LastRun(t *testing.T) {
	t.Parallel()

	tracker := report.NewTracker()
	s := NewServer(tracker, nil, nil)

	rec := serve(t, s, "/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tracker.Start("run-9", []string{"meta", "apple"}, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC))
	tracker.Record(report.CompanyResult{Company: "meta", Status: ingest.StatusOK,
		Metrics: report.Metrics{Fetched: 3, Total: 3, Inserted: 4}})

	rec = serve(t, s, "/v1/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var body runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, "run-9", body.Run.RunID)

	rec = serve(t, s, "/v1/runs/last/companies/META")
	require.Equal(t, http.StatusOK, rec.Code)
	var res report.CompanyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 4, res.Metrics.Inserted)

	rec = serve(t, s, "/v1/runs/last/companies/apple")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(nil, nil, nil).ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
