// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

// Config captures every knob of the weekly ingest.
type Config struct {
	DB           DBConfig                `mapstructure:"db"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Pacing       map[string]PacingConfig `mapstructure:"pacing"`
	Sources      map[string]SourceConfig `mapstructure:"sources"`
	Orchestrator OrchestratorConfig      `mapstructure:"orchestrator"`
	Report       ReportConfig            `mapstructure:"report"`
	PubSub       PubSubConfig            `mapstructure:"pubsub"`
	Metrics      MetricsConfig           `mapstructure:"metrics"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	FactsTable             string `mapstructure:"facts_table"`
	CompaniesTable         string `mapstructure:"companies_table"`
}

// MaxConnLifetime returns the pool connection lifetime.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}

// HTTPConfig overrides the per-source retry policies. Zero values keep the
// source's own setting.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	JitterMs         int    `mapstructure:"jitter_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// PacingConfig bounds the call rate and courtesy delays for one source.
// Delays are in milliseconds; RPS applies to page and detail calls alike.
type PacingConfig struct {
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
	PageMinMs   int     `mapstructure:"page_min_ms"`
	PageMaxMs   int     `mapstructure:"page_max_ms"`
	DetailMinMs int     `mapstructure:"detail_min_ms"`
	DetailMaxMs int     `mapstructure:"detail_max_ms"`
}

// Page returns the page delay bounds.
func (p PacingConfig) Page() (lo, hi time.Duration) {
	return ms(p.PageMinMs), ms(p.PageMaxMs)
}

// Detail returns the detail (or per-item) delay bounds.
func (p PacingConfig) Detail() (lo, hi time.Duration) {
	return ms(p.DetailMinMs), ms(p.DetailMaxMs)
}

// SourceConfig toggles one adapter.
type SourceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DisabledReason string `mapstructure:"disabled_reason"`
}

// OrchestratorConfig governs the weekly run.
type OrchestratorConfig struct {
	Companies          string             `mapstructure:"companies"`
	Concurrency        int                `mapstructure:"concurrency"`
	MaxPages           int                `mapstructure:"max_pages"`
	QualityGate        bool               `mapstructure:"quality_gate"`
	MinFetched         int                `mapstructure:"min_fetched"`
	MinFetchedBySource map[string]int     `mapstructure:"min_fetched_by_source"`
	MinRatio           map[string]float64 `mapstructure:"min_ratio"`
	TopCountries       int                `mapstructure:"top_countries"`
}

// ReportConfig sets where run reports go.
type ReportConfig struct {
	LogDir    string `mapstructure:"log_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds the run notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls metric exposure.
type MetricsConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// defaultPacing mirrors the courtesy delays each careers site tolerates.
var defaultPacing = map[string]PacingConfig{
	"nvidia":    {RPS: 4, Burst: 2, PageMinMs: 50, PageMaxMs: 150, DetailMinMs: 450, DetailMaxMs: 850},
	"intel":     {RPS: 4, Burst: 2, PageMinMs: 50, PageMaxMs: 150, DetailMinMs: 350, DetailMaxMs: 750},
	"amazon":    {RPS: 3, Burst: 1, PageMinMs: 80, PageMaxMs: 200},
	"apple":     {RPS: 3, Burst: 1, PageMinMs: 80, PageMaxMs: 200},
	"google":    {RPS: 5, Burst: 2, PageMinMs: 40, PageMaxMs: 120},
	"meta":      {RPS: 8, Burst: 4, DetailMinMs: 40, DetailMaxMs: 120},
	"microsoft": {RPS: 4, Burst: 1, PageMinMs: 60, PageMaxMs: 140},
	"nokia":     {RPS: 3, Burst: 1, PageMinMs: 80, PageMaxMs: 200},
}

// DefaultCompanies is the declared run order.
const DefaultCompanies = "amazon,apple,google,intel,meta,microsoft,nvidia,nokia"

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("db.dsn", "INGEST_DB_DSN", "NEON_DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind db.dsn: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.facts_table", "job_location_facts")
	v.SetDefault("db.companies_table", "companies")
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("http.max_retries", 0)
	v.SetDefault("http.backoff_initial_ms", 0)
	v.SetDefault("http.backoff_max_ms", 0)
	v.SetDefault("http.jitter_ms", 0)
	v.SetDefault("http.user_agent", "")
	for key, p := range defaultPacing {
		v.SetDefault("pacing."+key+".rps", p.RPS)
		v.SetDefault("pacing."+key+".burst", p.Burst)
		v.SetDefault("pacing."+key+".page_min_ms", p.PageMinMs)
		v.SetDefault("pacing."+key+".page_max_ms", p.PageMaxMs)
		v.SetDefault("pacing."+key+".detail_min_ms", p.DetailMinMs)
		v.SetDefault("pacing."+key+".detail_max_ms", p.DetailMaxMs)
		v.SetDefault("sources."+key+".enabled", true)
	}
	v.SetDefault("orchestrator.companies", DefaultCompanies)
	v.SetDefault("orchestrator.concurrency", 1)
	v.SetDefault("orchestrator.max_pages", 500)
	v.SetDefault("orchestrator.quality_gate", true)
	v.SetDefault("orchestrator.min_fetched", 1)
	v.SetDefault("orchestrator.min_ratio", map[string]float64{"meta": 0.7})
	v.SetDefault("orchestrator.top_countries", 5)
	v.SetDefault("report.log_dir", "logs/ingest")
	v.SetDefault("report.gcs_prefix", "ingest-reports")
	v.SetDefault("metrics.job_name", "companyloc_ingest")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. The DSN is
// checked separately by RequireDSN so dry runs work without one.
func (c Config) Validate() error {
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("%w: orchestrator.concurrency must be > 0", ingest.ErrConfiguration)
	}
	if c.Orchestrator.MaxPages <= 0 {
		return fmt.Errorf("%w: orchestrator.max_pages must be > 0", ingest.ErrConfiguration)
	}
	if c.Orchestrator.MinFetched < 0 {
		return fmt.Errorf("%w: orchestrator.min_fetched must be >= 0", ingest.ErrConfiguration)
	}
	for key, r := range c.Orchestrator.MinRatio {
		if r < 0 || r > 1 {
			return fmt.Errorf("%w: orchestrator.min_ratio.%s must be within [0,1]", ingest.ErrConfiguration, key)
		}
	}
	if c.Orchestrator.TopCountries <= 0 {
		return fmt.Errorf("%w: orchestrator.top_countries must be > 0", ingest.ErrConfiguration)
	}
	for key, p := range c.Pacing {
		if p.PageMinMs < 0 || p.PageMaxMs < p.PageMinMs || p.DetailMinMs < 0 || p.DetailMaxMs < p.DetailMinMs {
			return fmt.Errorf("%w: pacing.%s bounds are inverted or negative", ingest.ErrConfiguration, key)
		}
		if p.RPS < 0 || p.Burst < 0 {
			return fmt.Errorf("%w: pacing.%s rps and burst must be >= 0", ingest.ErrConfiguration, key)
		}
	}
	if c.Report.LogDir == "" {
		return fmt.Errorf("%w: report.log_dir must be set", ingest.ErrConfiguration)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("%w: pubsub.project_id must be set when pubsub.topic_name is", ingest.ErrConfiguration)
	}
	return nil
}

// RequireDSN fails when no database DSN is configured.
func (c Config) RequireDSN() error {
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("%w: set INGEST_DB_DSN or NEON_DATABASE_URL", ingest.ErrConfiguration)
	}
	return nil
}

// MinFetchedFor returns the minimum postings a source must return.
func (c OrchestratorConfig) MinFetchedFor(key string) int {
	if n, ok := c.MinFetchedBySource[key]; ok {
		return n
	}
	return c.MinFetched
}

// SourceEnabled reports whether key is switched on and why not.
func (c Config) SourceEnabled(key string) (bool, string) {
	sc, ok := c.Sources[key]
	if !ok {
		return true, ""
	}
	if sc.Enabled {
		return true, ""
	}
	reason := sc.DisabledReason
	if reason == "" {
		reason = "disabled_by_config"
	}
	return false, reason
}

// PacingFor returns the pacing for key, or zero delays when unset.
func (c Config) PacingFor(key string) PacingConfig {
	return c.Pacing[key]
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
