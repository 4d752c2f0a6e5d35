// Package api hosts the debug HTTP server that runs alongside a weekly
// ingest. Routes:
//   - GET /healthz and /readyz for liveness and database readiness.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the current or most recent run report.
//   - GET /v1/runs/last/companies/{company} for one company's result.
package api
