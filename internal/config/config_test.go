package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INGEST_DB_DSN", "")
	t.Setenv("NEON_DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultCompanies, cfg.Orchestrator.Companies)
	assert.Equal(t, 1, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 500, cfg.Orchestrator.MaxPages)
	assert.True(t, cfg.Orchestrator.QualityGate)
	assert.Equal(t, 1, cfg.Orchestrator.MinFetched)
	assert.InDelta(t, 0.7, cfg.Orchestrator.MinRatio["meta"], 1e-9)
	assert.Equal(t, 5, cfg.Orchestrator.TopCountries)
	assert.Equal(t, "logs/ingest", cfg.Report.LogDir)
	assert.Equal(t, "job_location_facts", cfg.DB.FactsTable)
	assert.Equal(t, 30*time.Minute, cfg.DB.MaxConnLifetime())

	lo, hi := cfg.PacingFor("nvidia").Detail()
	assert.Equal(t, 450*time.Millisecond, lo)
	assert.Equal(t, 850*time.Millisecond, hi)
	assert.InDelta(t, 4.0, cfg.PacingFor("nvidia").RPS, 1e-9)
	assert.Equal(t, 2, cfg.PacingFor("nvidia").Burst)
	lo, hi = cfg.PacingFor("google").Page()
	assert.Equal(t, 40*time.Millisecond, lo)
	assert.Equal(t, 120*time.Millisecond, hi)

	enabled, _ := cfg.SourceEnabled("amazon")
	assert.True(t, enabled)

	err = cfg.RequireDSN()
	require.ErrorIs(t, err, ingest.ErrConfiguration)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Setenv("INGEST_DB_DSN", "")
	t.Setenv("NEON_DATABASE_URL", "")

	path := writeConfig(t, `
db:
  dsn: postgres://file
  max_conns: 8
orchestrator:
  companies: meta,nvidia
  concurrency: 3
  min_fetched_by_source:
    intel: 50
pacing:
  amazon:
    rps: 2
    page_min_ms: 10
    page_max_ms: 20
sources:
  google:
    enabled: false
    disabled_reason: blocked_upstream
report:
  log_dir: /tmp/reports
  gcs_bucket: reports-bucket
pubsub:
  project_id: proj
  topic_name: ingest-runs
logging:
  development: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file", cfg.DB.DSN)
	assert.Equal(t, int32(8), cfg.DB.MaxConns)
	assert.Equal(t, "meta,nvidia", cfg.Orchestrator.Companies)
	assert.Equal(t, 3, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 50, cfg.Orchestrator.MinFetchedFor("intel"))
	assert.Equal(t, 1, cfg.Orchestrator.MinFetchedFor("apple"))
	assert.Equal(t, PacingConfig{RPS: 2, Burst: 1, PageMinMs: 10, PageMaxMs: 20}, cfg.PacingFor("amazon"))
	assert.Equal(t, "reports-bucket", cfg.Report.GCSBucket)
	assert.Equal(t, "ingest-runs", cfg.PubSub.TopicName)
	assert.False(t, cfg.Logging.Development)
	require.NoError(t, cfg.RequireDSN())

	enabled, reason := cfg.SourceEnabled("google")
	assert.False(t, enabled)
	assert.Equal(t, "blocked_upstream", reason)
}

func TestLoadDSNFromEnvironment(t *testing.T) {
	t.Setenv("INGEST_DB_DSN", "")
	t.Setenv("NEON_DATABASE_URL", "postgres://neon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://neon", cfg.DB.DSN)

	t.Setenv("INGEST_DB_DSN", "postgres://primary")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DB.DSN)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Orchestrator: OrchestratorConfig{Concurrency: 1, MaxPages: 10, MinFetched: 1, TopCountries: 5},
			Report:       ReportConfig{LogDir: "logs"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"concurrency", func(c *Config) { c.Orchestrator.Concurrency = 0 }},
		{"max pages", func(c *Config) { c.Orchestrator.MaxPages = 0 }},
		{"min fetched", func(c *Config) { c.Orchestrator.MinFetched = -1 }},
		{"ratio", func(c *Config) { c.Orchestrator.MinRatio = map[string]float64{"meta": 1.5} }},
		{"top countries", func(c *Config) { c.Orchestrator.TopCountries = 0 }},
		{"pacing", func(c *Config) { c.Pacing = map[string]PacingConfig{"x": {PageMinMs: 10, PageMaxMs: 5}} }},
		{"pacing rps", func(c *Config) { c.Pacing = map[string]PacingConfig{"x": {RPS: -1}} }},
		{"log dir", func(c *Config) { c.Report.LogDir = "" }},
		{"pubsub", func(c *Config) { c.PubSub.TopicName = "t" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ingest.ErrConfiguration)
		})
	}
}
