// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/metrics"
)

const (
	// DefaultFactsTable holds location facts.
	DefaultFactsTable = "job_location_facts"
	// DefaultCompaniesTable holds the company directory.
	DefaultCompaniesTable = "companies"
	// ChunkSize bounds the rows in one INSERT statement.
	ChunkSize = 500

	maxAnomalyLogs = 10
)

// DefaultViews are the aggregate views refreshed after a write.
var DefaultViews = []string{
	"mv_country_month_counts",
	"mv_company_country_month_counts",
	"mv_country_month_avg_counts",
	"mv_company_country_month_avg_counts",
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

var factColumns = []string{
	"company_id",
	"job_key",
	"snapshot_month",
	"snapshot_date",
	"title",
	"city_raw",
	"country_raw",
	"location_raw",
	"city_norm",
	"region_norm",
	"country_norm",
	"location_confidence",
	"posted_at",
	"content_hash",
	"captured_at",
}

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	FactsTable      string
	CompaniesTable  string
	Views           []string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store writes location facts and reads companies.
type Store struct {
	pool      Pool
	facts     string
	companies string
	views     []string
	logger    *zap.Logger
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required: %w", ingest.ErrConfiguration)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, cfg Config, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		pool:      pool,
		facts:     cfg.FactsTable,
		companies: cfg.CompaniesTable,
		views:     cfg.Views,
		logger:    logger,
	}
	if s.facts == "" {
		s.facts = DefaultFactsTable
	}
	if s.companies == "" {
		s.companies = DefaultCompaniesTable
	}
	if s.views == nil {
		s.views = DefaultViews
	}
	for _, name := range append([]string{s.facts, s.companies}, s.views...) {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Upsert writes rows in one transaction, chunked into multi-row inserts.
// Rows that collide on the conflict key overwrite the mutable columns. It
// returns the number of rows inserted or updated.
func (s *Store) Upsert(ctx context.Context, rows []ingest.LocationFact) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	clean := s.sanitize(rows)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	affected := 0
	for start := 0; start < len(clean); start += ChunkSize {
		chunk := clean[start:min(start+ChunkSize, len(clean))]
		query, args := s.upsertStatement(chunk)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert facts rows %d-%d: %w", start, start+len(chunk)-1, err)
		}
		affected += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return affected, nil
}

func (s *Store) upsertStatement(chunk []ingest.LocationFact) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.facts, strings.Join(factColumns, ", "))
	args := make([]any, 0, len(chunk)*len(factColumns))
	for i, f := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range factColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*len(factColumns)+j+1)
		}
		b.WriteByte(')')
		args = append(args, factArgs(f)...)
	}
	b.WriteString(`
ON CONFLICT (company_id, job_key, snapshot_date, country_norm, (COALESCE(city_norm, '')))
DO UPDATE SET
	title = EXCLUDED.title,
	snapshot_month = EXCLUDED.snapshot_month,
	city_raw = EXCLUDED.city_raw,
	country_raw = EXCLUDED.country_raw,
	location_raw = EXCLUDED.location_raw,
	region_norm = EXCLUDED.region_norm,
	location_confidence = EXCLUDED.location_confidence,
	posted_at = EXCLUDED.posted_at,
	content_hash = EXCLUDED.content_hash,
	captured_at = EXCLUDED.captured_at,
	updated_at = now()`)
	return b.String(), args
}

func factArgs(f ingest.LocationFact) []any {
	var posted any
	if f.PostedAt != nil {
		posted = *f.PostedAt
	}
	return []any{
		f.CompanyID,
		f.JobKey,
		f.SnapshotMonth,
		f.SnapshotDate,
		nullable(f.Title),
		nullable(f.CityRaw),
		nullable(f.CountryRaw),
		nullable(f.LocationRaw),
		nullable(f.CityNorm),
		nullable(f.RegionNorm),
		f.CountryNorm,
		f.Confidence,
		posted,
		f.ContentHash,
		f.CapturedAt,
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// sanitize replaces invalid UTF-8 and strips NUL bytes, which Postgres text
// columns reject. The first few repaired rows are logged.
func (s *Store) sanitize(rows []ingest.LocationFact) []ingest.LocationFact {
	out := make([]ingest.LocationFact, len(rows))
	logged := 0
	for i, f := range rows {
		fields := []*string{
			&f.JobKey, &f.Title, &f.CityRaw, &f.CountryRaw, &f.LocationRaw,
			&f.CityNorm, &f.RegionNorm, &f.CountryNorm,
		}
		repaired := false
		for _, p := range fields {
			if fixed, changed := cleanText(*p); changed {
				*p = fixed
				repaired = true
			}
		}
		if repaired && logged < maxAnomalyLogs {
			s.logger.Warn("repaired fact text", zap.String("job_key", f.JobKey), zap.Int("row", i))
			logged++
		}
		out[i] = f
	}
	return out
}

func cleanText(v string) (string, bool) {
	if utf8.ValidString(v) && !strings.ContainsRune(v, 0) {
		return v, false
	}
	v = strings.ToValidUTF8(v, "�")
	return strings.ReplaceAll(v, "\x00", ""), true
}

// RefreshAggregates refreshes every aggregate view. A failed view does not
// stop the others; the failures are returned joined.
func (s *Store) RefreshAggregates(ctx context.Context) error {
	var errs []error
	for _, view := range s.views {
		if _, err := s.pool.Exec(ctx, "REFRESH MATERIALIZED VIEW "+view); err != nil {
			s.logger.Warn("aggregate refresh failed", zap.String("view", view), zap.Error(err))
			metrics.ObserveRefreshFailure(view)
			errs = append(errs, fmt.Errorf("refresh %s: %w", view, err))
		}
	}
	return errors.Join(errs...)
}

// CountryBreakdown returns job counts by country at the company's latest
// snapshot date, largest first.
func (s *Store) CountryBreakdown(ctx context.Context, companyID uuid.UUID, limit int) ([]ingest.CountryCount, error) {
	query := fmt.Sprintf(`
SELECT country_norm, COUNT(DISTINCT job_key) AS job_count
FROM %[1]s
WHERE company_id = $1
  AND snapshot_date = (SELECT MAX(snapshot_date) FROM %[1]s WHERE company_id = $1)
GROUP BY country_norm
ORDER BY job_count DESC, country_norm ASC
LIMIT $2`, s.facts)
	rows, err := s.pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("country breakdown: %w", err)
	}
	defer rows.Close()

	var out []ingest.CountryCount
	for rows.Next() {
		var c ingest.CountryCount
		if err := rows.Scan(&c.Country, &c.Jobs); err != nil {
			return nil, fmt.Errorf("scan country breakdown: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("country breakdown rows: %w", err)
	}
	return out, nil
}

// CompanyByName looks a company up by case-insensitive name.
func (s *Store) CompanyByName(ctx context.Context, name string) (ingest.Company, error) {
	query := fmt.Sprintf(`
SELECT id, name, COALESCE(source_type, ''), is_active
FROM %s
WHERE LOWER(name) = LOWER($1)
LIMIT 1`, s.companies)
	var c ingest.Company
	err := s.pool.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name, &c.SourceKey, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Company{}, fmt.Errorf("%q: %w", name, ingest.ErrCompanyNotFound)
		}
		return ingest.Company{}, fmt.Errorf("lookup company %q: %w", name, err)
	}
	return c, nil
}

var (
	_ ingest.FactStore        = (*Store)(nil)
	_ ingest.CompanyDirectory = (*Store)(nil)
)
