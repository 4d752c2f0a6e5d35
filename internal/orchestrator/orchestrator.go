// Package orchestrator runs the weekly ingest across companies and builds
// the run report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/companyloc-platform/internal/facts"
	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
	"github.com/JakeFAU/companyloc-platform/internal/metrics"
	"github.com/JakeFAU/companyloc-platform/internal/report"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
)

// Skip reasons recorded in the report.
const (
	ReasonNotImplemented  = "pipeline_not_implemented"
	ReasonCompanyNotFound = "company_not_found"
	ReasonCompanyInactive = "company_inactive"
	ReasonDisabled        = "pipeline_skipped"
)

// PacerFunc returns the page and detail pacers for a source key. Either may
// be nil.
type PacerFunc func(key string) (page, detail ingest.Pacer)

// Config tunes a run.
type Config struct {
	Concurrency  int
	MaxPages     int
	QualityGate  bool
	MinFetched   int
	MinFetchedBy map[string]int
	MinRatio     map[string]float64
	TopCountries int
}

// GateFor returns the thresholds for key.
func (c Config) GateFor(key string) Gate {
	g := Gate{MinFetched: c.MinFetched}
	if n, ok := c.MinFetchedBy[key]; ok {
		g.MinFetched = n
	}
	if r, ok := c.MinRatio[key]; ok {
		g.MinRatio, g.HasRatio = r, true
	}
	return g
}

// Deps are the collaborators a run needs.
type Deps struct {
	Registry  *sources.Registry
	Store     ingest.FactStore
	Directory ingest.CompanyDirectory
	Hasher    ingest.Hasher
	Clock     ingest.Clock
	IDs       ingest.IDGenerator
	Pacers    PacerFunc
	Tracker   *report.Tracker
	Logger    *zap.Logger
}

// Orchestrator runs companies and reports their outcomes.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New creates an Orchestrator. Registry, Store, Directory, Hasher, Clock,
// and IDs are required.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry is required", ingest.ErrConfiguration)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: fact store is required", ingest.ErrConfiguration)
	case deps.Directory == nil:
		return nil, fmt.Errorf("%w: company directory is required", ingest.ErrConfiguration)
	case deps.Hasher == nil || deps.Clock == nil || deps.IDs == nil:
		return nil, fmt.Errorf("%w: hasher, clock, and id generator are required", ingest.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracker == nil {
		deps.Tracker = report.NewTracker()
	}
	if deps.Pacers == nil {
		deps.Pacers = func(string) (ingest.Pacer, ingest.Pacer) { return nil, nil }
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TopCountries <= 0 {
		cfg.TopCountries = 5
	}
	return &Orchestrator{deps: deps, cfg: cfg}, nil
}

// Run processes keys and returns the finalized report. Results keep the
// order of keys regardless of concurrency. A failed company never stops
// the others.
func (o *Orchestrator) Run(ctx context.Context, keys []string) (report.Run, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return report.Run{}, fmt.Errorf("run id: %w", err)
	}
	logger := o.deps.Logger.With(zap.String("run_id", runID))
	run := report.Run{
		RunID:        runID,
		RunStartedAt: o.deps.Clock.Now().UTC(),
		Companies:    append([]string(nil), keys...),
		Results:      make([]report.CompanyResult, len(keys)),
	}
	o.deps.Tracker.Start(runID, keys, run.RunStartedAt)
	logger.Info("weekly ingest started", zap.Strings("companies", keys), zap.Int("concurrency", o.cfg.Concurrency))

	if o.cfg.Concurrency == 1 {
		for i, key := range keys {
			run.Results[i] = o.runCompany(ctx, key, logger)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for i, key := range keys {
			g.Go(func() error {
				run.Results[i] = o.runCompany(ctx, key, logger)
				return nil
			})
		}
		_ = g.Wait() // company failures are recorded, never returned
	}

	run.Finalize(o.deps.Clock.Now())
	o.deps.Tracker.Finish(run)
	logger.Info("weekly ingest finished",
		zap.Int("ok", run.OK), zap.Int("skip", run.Skip), zap.Int("fail", run.Fail),
		zap.Int("exit_code", run.ExitCode))
	return run, nil
}

// outcome is what a successful or gated company run produced.
type outcome struct {
	status  ingest.RunStatus
	reason  string
	metrics report.Metrics
	top     []ingest.CountryCount
}

func (o *Orchestrator) runCompany(ctx context.Context, key string, parent *zap.Logger) (res report.CompanyResult) {
	logger := parent.With(zap.String("company", key))
	started := o.deps.Clock.Now().UTC()
	res = report.CompanyResult{Company: key, Status: ingest.StatusRunning, StartedAt: started}
	o.deps.Tracker.Record(res)

	defer func() {
		if p := recover(); p != nil {
			res.Status = ingest.StatusFailed
			res.ErrorType = "panic"
			res.ErrorMessage = fmt.Sprint(p)
			logger.Error("[FAIL] company run panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
		ended := o.deps.Clock.Now().UTC()
		res.EndedAt = ended
		res.DurationSec = ended.Sub(started).Seconds()
		o.deps.Tracker.Record(res)
		metrics.ObserveCompanyRun(key, string(res.Status), res.Metrics.Fetched, res.Metrics.Total, ended.Sub(started))
	}()

	out, err := o.execute(ctx, key, logger)
	res.Metrics = out.metrics
	res.CountryTop5 = out.top
	if err != nil {
		res.Status = ingest.StatusFailed
		var gate *ingest.QualityGateError
		if errors.As(err, &gate) {
			res.Reason = gate.Reason
			logger.Warn("[FAIL] quality gate", zap.String("reason", gate.Reason))
			return res
		}
		res.ErrorType = ErrorType(err)
		res.ErrorMessage = err.Error()
		logger.Error("[FAIL] company run failed", zap.String("error_type", res.ErrorType), zap.Error(err))
		return res
	}
	res.Status = out.status
	res.Reason = out.reason
	if out.status == ingest.StatusSkipped {
		logger.Info("[SKIP] company skipped", zap.String("reason", out.reason))
	} else {
		logger.Info("[DONE] company run finished",
			zap.Int("fetched", out.metrics.Fetched),
			zap.Int("total", out.metrics.Total),
			zap.Int("inserted", out.metrics.Inserted),
			zap.Duration("elapsed", o.deps.Clock.Now().Sub(started)))
	}
	return res
}

func skipped(reason string) outcome {
	return outcome{status: ingest.StatusSkipped, reason: reason}
}

func (o *Orchestrator) execute(ctx context.Context, key string, logger *zap.Logger) (outcome, error) {
	src, ok := o.deps.Registry.Lookup(key)
	if !ok {
		return skipped(ReasonNotImplemented), nil
	}
	if sk, ok := src.(ingest.Skipper); ok {
		if off, reason := sk.Disabled(); off {
			if reason == "" {
				reason = ReasonDisabled
			}
			return skipped(reason), nil
		}
	}

	company, err := o.deps.Directory.CompanyByName(ctx, sources.DisplayName(key))
	if errors.Is(err, ingest.ErrCompanyNotFound) {
		return skipped(ReasonCompanyNotFound), nil
	}
	if err != nil {
		return outcome{}, fmt.Errorf("lookup company %s: %w", key, err)
	}
	if !company.Active {
		return skipped(ReasonCompanyInactive), nil
	}

	logger.Info("[RUN ] company run started", zap.String("company_id", company.ID.String()))

	if b, ok := src.(ingest.Bootstrapper); ok {
		if err := b.Bootstrap(ctx); err != nil {
			return outcome{}, fmt.Errorf("bootstrap %s: %w", key, err)
		}
	}

	pagePacer, detailPacer := o.deps.Pacers(key)
	collected, err := sources.Collect(ctx, src, sources.CollectOptions{
		MaxPages:    o.cfg.MaxPages,
		PagePacer:   pagePacer,
		DetailPacer: detailPacer,
		Logger:      logger,
	})
	if err != nil {
		return outcome{}, fmt.Errorf("collect %s: %w", key, err)
	}

	out := outcome{status: ingest.StatusOK}
	out.metrics.Fetched = len(collected.Postings)
	out.metrics.Total = collected.Total

	scoring := location.DefaultScoring
	if sp, ok := src.(ingest.ScoringProvider); ok {
		scoring = sp.Scoring()
	}
	rows := facts.NewBuilder(o.deps.Hasher, scoring).Build(company, collected.Postings, o.deps.Clock.Now())
	rows = facts.Dedup(rows)

	inserted, err := o.deps.Store.Upsert(ctx, rows)
	if err != nil {
		return out, fmt.Errorf("upsert %s: %w", key, err)
	}
	out.metrics.Inserted = inserted
	metrics.ObserveUpsert(key, inserted)
	logger.Info("facts written",
		zap.Int("pages", collected.Pages),
		zap.Int("dropped", collected.Dropped),
		zap.Int("rows", len(rows)),
		zap.Int("inserted", inserted))

	if err := o.deps.Store.RefreshAggregates(ctx); err != nil {
		logger.Warn("aggregate refresh failed", zap.Error(err))
	}

	top, err := o.deps.Store.CountryBreakdown(ctx, company.ID, o.cfg.TopCountries)
	if err != nil {
		logger.Warn("country breakdown failed", zap.Error(err))
	}
	out.top = top

	if o.cfg.QualityGate {
		if err := o.cfg.GateFor(key).Check(out.metrics.Fetched, out.metrics.Total); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ErrorType classifies err for the report.
func ErrorType(err error) string {
	var httpErr *fetch.HTTPError
	switch {
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, fetch.ErrRetriesExhausted):
		return "TransientNetworkError"
	case errors.As(err, &httpErr):
		return "HTTPError"
	case errors.Is(err, ingest.ErrUpstreamShape):
		return "UpstreamShapeError"
	case errors.Is(err, ingest.ErrConfiguration):
		return "ConfigurationError"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
