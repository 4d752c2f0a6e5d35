// Package metrics exposes Prometheus collectors for the ingest pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchRetryWaitSeconds      *prometheus.HistogramVec
	pacingDelaySeconds         *prometheus.HistogramVec
	pagesTotal                 *prometheus.CounterVec
	companyRunsTotal           *prometheus.CounterVec
	companyRunDurationSeconds  *prometheus.HistogramVec
	companyPostingsFetched     *prometheus.GaugeVec
	companyPostingsTotal       *prometheus.GaugeVec
	factsUpsertedTotal         *prometheus.CounterVec
	aggregateRefreshFailures   *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_attempts_total",
				Help: "Upstream HTTP attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)
		fetchRetryWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_fetch_retry_wait_seconds",
				Help:    "Backoff waited before a retry, labeled by source.",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30, 60},
			},
			[]string{"source"},
		)
		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_pacing_delay_seconds",
				Help:    "Courtesy delay inserted between upstream calls, labeled by pacer.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"pacer"},
		)
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pages_total",
				Help: "Listing pages fetched, labeled by source.",
			},
			[]string{"source"},
		)
		companyRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_company_runs_total",
				Help: "Company runs, labeled by company and terminal status.",
			},
			[]string{"company", "status"},
		)
		companyRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_company_run_duration_seconds",
				Help:    "Wall time of one company run.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"company"},
		)
		companyPostingsFetched = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_company_postings_fetched",
				Help: "Unique postings kept in the latest run.",
			},
			[]string{"company"},
		)
		companyPostingsTotal = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_company_postings_reported_total",
				Help: "Upstream-reported posting total in the latest run.",
			},
			[]string{"company"},
		)
		factsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_facts_upserted_total",
				Help: "Location fact rows written, labeled by company.",
			},
			[]string{"company"},
		)
		aggregateRefreshFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_aggregate_refresh_failures_total",
				Help: "Failed aggregate view refreshes, labeled by view.",
			},
			[]string{"view"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Pushgateway under the given job name.
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// ObserveFetchAttempt records one upstream attempt outcome.
func ObserveFetchAttempt(source, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRetryWait records the backoff before a retry.
func ObserveRetryWait(source string, d time.Duration) {
	Init()
	fetchRetryWaitSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObservePacingDelay records a courtesy delay.
func ObservePacingDelay(pacer string, d time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(pacer).Observe(d.Seconds())
}

// ObservePage counts one listing page.
func ObservePage(source string) {
	Init()
	pagesTotal.WithLabelValues(source).Inc()
}

// ObserveCompanyRun records a terminal company run.
func ObserveCompanyRun(company, status string, fetched, total int, d time.Duration) {
	Init()
	companyRunsTotal.WithLabelValues(company, status).Inc()
	companyRunDurationSeconds.WithLabelValues(company).Observe(d.Seconds())
	companyPostingsFetched.WithLabelValues(company).Set(float64(fetched))
	companyPostingsTotal.WithLabelValues(company).Set(float64(total))
}

// ObserveUpsert counts written fact rows.
func ObserveUpsert(company string, rows int) {
	Init()
	if rows > 0 {
		factsUpsertedTotal.WithLabelValues(company).Add(float64(rows))
	}
}

// ObserveRefreshFailure counts a failed aggregate refresh.
func ObserveRefreshFailure(view string) {
	Init()
	aggregateRefreshFailures.WithLabelValues(view).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
