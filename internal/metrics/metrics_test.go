package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchAttemptsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, fetchAttemptsTotal)
}

func TestObserveFetchAttempt(t *testing.T) {
	ObserveFetchAttempt("metrics-test", "retry")
	ObserveFetchAttempt("metrics-test", "retry")
	ObserveFetchAttempt("metrics-test", "ok")

	assert.InDelta(t, 2, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics-test", "retry")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics-test", "ok")), 0)
}

func TestObserveCompanyRun(t *testing.T) {
	ObserveCompanyRun("metrics-co", "ok", 40, 50, 3*time.Second)
	ObserveUpsert("metrics-co", 12)
	ObserveUpsert("metrics-co", 0)

	assert.InDelta(t, 1, testutil.ToFloat64(companyRunsTotal.WithLabelValues("metrics-co", "ok")), 0)
	assert.InDelta(t, 40, testutil.ToFloat64(companyPostingsFetched.WithLabelValues("metrics-co")), 0)
	assert.InDelta(t, 50, testutil.ToFloat64(companyPostingsTotal.WithLabelValues("metrics-co")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(factsUpsertedTotal.WithLabelValues("metrics-co")), 0)
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	require.NoError(t, Push("", "weekly_ingest"))
}

func TestPushToGateway(t *testing.T) {
	Init()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, Push(srv.URL, "weekly_ingest"))
	assert.Equal(t, "/metrics/job/weekly_ingest", gotPath)
}
