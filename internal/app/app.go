// Package app wires configuration into the stores, adapters, and
// orchestrator of a weekly run, and owns their lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/api"
	"github.com/JakeFAU/companyloc-platform/internal/clock/system"
	"github.com/JakeFAU/companyloc-platform/internal/config"
	"github.com/JakeFAU/companyloc-platform/internal/hash/sha256"
	idgen "github.com/JakeFAU/companyloc-platform/internal/id/uuid"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/metrics"
	"github.com/JakeFAU/companyloc-platform/internal/orchestrator"
	"github.com/JakeFAU/companyloc-platform/internal/policy/ratelimit"
	pubmem "github.com/JakeFAU/companyloc-platform/internal/publisher/memory"
	"github.com/JakeFAU/companyloc-platform/internal/publisher/pubsub"
	"github.com/JakeFAU/companyloc-platform/internal/report"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
	"github.com/JakeFAU/companyloc-platform/internal/storage/gcs"
	"github.com/JakeFAU/companyloc-platform/internal/storage/local"
	"github.com/JakeFAU/companyloc-platform/internal/storage/memory"
	"github.com/JakeFAU/companyloc-platform/internal/storage/postgres"
)

const defaultSummaryTopic = "companyloc-ingest-runs"

// Options adjust how an App is assembled.
type Options struct {
	// DryRun selects the in-memory fact store and a synthetic company
	// directory. The GCS archive is skipped and run summaries are recorded
	// in memory instead of published.
	DryRun bool
	// Registry replaces the production adapters.
	Registry *sources.Registry
	// Clock replaces the system clock.
	Clock ingest.Clock
}

// App holds the long-lived services of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *sources.Registry
	limiter   *ratelimit.Limiter
	store     ingest.FactStore
	directory ingest.CompanyDirectory
	pg        *postgres.Store
	writer    *report.Writer
	tracker   *report.Tracker
	clock     ingest.Clock
	gcs       *storage.Client
	publisher *pubsub.Publisher
	notes     *pubmem.Publisher
}

// New creates an App. Outside a dry run a database DSN is required.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		limiter: NewLimiter(cfg),
		tracker: report.NewTracker(),
		clock:   opts.Clock,
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	a.registry = opts.Registry
	if a.registry == nil {
		a.registry = BuildRegistry(cfg, a.limiter, logger)
	}

	if opts.DryRun {
		logger.Info("dry run: using in-memory fact store")
		a.store = memory.NewFactStore()
		a.directory = SyntheticDirectory()
	} else {
		if err := cfg.RequireDSN(); err != nil {
			return nil, err
		}
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			FactsTable:      cfg.DB.FactsTable,
			CompaniesTable:  cfg.DB.CompaniesTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime(),
		}, logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("open fact store: %w", err)
		}
		a.pg = pg
		a.store = pg
		a.directory = pg
	}

	if err := a.initReports(ctx, opts.DryRun); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initReports(ctx context.Context, dryRun bool) error {
	primary, err := local.New(local.Config{BaseDir: a.cfg.Report.LogDir})
	if err != nil {
		return fmt.Errorf("report directory: %w", err)
	}
	writerOpts := []report.Option{report.WithLogger(a.logger.Named("report"))}
	if dryRun {
		a.notes = pubmem.New()
		writerOpts = append(writerOpts, report.WithPublisher(a.notes, a.summaryTopic()))
		a.writer = report.NewWriter(primary, writerOpts...)
		return nil
	}

	if bucket := a.cfg.Report.GCSBucket; bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		a.gcs = client
		archive, err := gcs.New(client, gcs.Config{Bucket: bucket, Prefix: a.cfg.Report.GCSPrefix})
		if err != nil {
			return fmt.Errorf("gcs report archive: %w", err)
		}
		writerOpts = append(writerOpts, report.WithArchive(archive))
	}
	if topic := a.cfg.PubSub.TopicName; topic != "" {
		pub, err := pubsub.Connect(ctx, a.cfg.PubSub.ProjectID, map[string]string{"service": "companyloc-ingest"})
		if err != nil {
			return fmt.Errorf("pubsub publisher: %w", err)
		}
		a.publisher = pub
		writerOpts = append(writerOpts, report.WithPublisher(pub, topic))
	}
	a.writer = report.NewWriter(primary, writerOpts...)
	return nil
}

func (a *App) summaryTopic() string {
	if a.cfg.PubSub.TopicName != "" {
		return a.cfg.PubSub.TopicName
	}
	return defaultSummaryTopic
}

// Notifications returns the run summaries recorded during a dry run.
func (a *App) Notifications() []pubmem.Message {
	if a.notes == nil {
		return nil
	}
	return a.notes.Messages()
}

// SyntheticDirectory lists every known company as active with a stable id.
func SyntheticDirectory() *memory.CompanyDirectory {
	d := memory.NewCompanyDirectory()
	for _, key := range sources.DefaultOrder {
		name := sources.DisplayName(key)
		d.Add(ingest.Company{
			ID:        idgen.CompanyID(name),
			Name:      name,
			SourceKey: key,
			Active:    true,
		})
	}
	return d
}

// Registry returns the adapter registry.
func (a *App) Registry() *sources.Registry {
	return a.registry
}

// Store returns the active fact store.
func (a *App) Store() ingest.FactStore {
	return a.store
}

// Tracker returns the live run tracker.
func (a *App) Tracker() *report.Tracker {
	return a.tracker
}

// Orchestrator builds an orchestrator from the configured dependencies.
func (a *App) Orchestrator(qualityGate bool, concurrency int) (*orchestrator.Orchestrator, error) {
	oc := a.cfg.Orchestrator
	if concurrency <= 0 {
		concurrency = oc.Concurrency
	}
	o, err := orchestrator.New(orchestrator.Deps{
		Registry:  a.registry,
		Store:     a.store,
		Directory: a.directory,
		Hasher:    sha256.New(),
		Clock:     a.clock,
		IDs:       idgen.New(),
		Pacers:    PacerFunc(a.limiter),
		Tracker:   a.tracker,
		Logger:    a.logger.Named("orchestrator"),
	}, orchestrator.Config{
		Concurrency:  concurrency,
		MaxPages:     oc.MaxPages,
		QualityGate:  qualityGate,
		MinFetched:   oc.MinFetched,
		MinFetchedBy: oc.MinFetchedBySource,
		MinRatio:     oc.MinRatio,
		TopCountries: oc.TopCountries,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return o, nil
}

// WeeklyOptions are the per-invocation switches of a weekly run.
type WeeklyOptions struct {
	QualityGate bool
	Concurrency int
}

// RunWeekly runs keys, writes the report, and pushes metrics. It returns
// the report and the URI it was written to.
func (a *App) RunWeekly(ctx context.Context, keys []string, opts WeeklyOptions) (report.Run, string, error) {
	o, err := a.Orchestrator(opts.QualityGate, opts.Concurrency)
	if err != nil {
		return report.Run{}, "", err
	}

	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		var pinger api.Pinger
		if a.pg != nil {
			pinger = a.pg
		}
		srv := api.NewServer(a.tracker, pinger, a.logger.Named("api"))
		go func() {
			if err := srv.ListenAndServe(srvCtx, addr); err != nil {
				a.logger.Warn("debug server stopped", zap.Error(err))
			}
		}()
	}

	run, err := o.Run(ctx, keys)
	if err != nil {
		return run, "", fmt.Errorf("weekly run: %w", err)
	}

	// The report is written even when ctx was canceled mid-run.
	uri, err := a.writer.Write(context.WithoutCancel(ctx), run)
	if err != nil {
		return run, "", err
	}
	if err := metrics.Push(a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
	return run, uri, nil
}

// Close releases every client the App opened.
func (a *App) Close() {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.gcs != nil {
		errs = append(errs, a.gcs.Close())
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
