package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/app"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
)

type weeklyFlags struct {
	companies     string
	logDir        string
	noQualityGate bool
	concurrency   int
	dryRun        bool
}

func newWeeklyCmd() *cobra.Command {
	var f weeklyFlags
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Run the weekly ingest for the selected companies",
		Long: `Runs every selected company in order, writes a JSON run report to the
log directory, and exits 1 when any company failed. Exits 2 when no
known company key was given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWeekly(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.companies, "companies", "", "comma-separated company keys (default from config)")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "directory for run reports (default from config)")
	cmd.Flags().BoolVar(&f.noQualityGate, "no-quality-gate", false, "do not fail companies that return too few postings")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "companies run at once (default from config)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "use the in-memory fact store instead of Postgres")
	return cmd
}

func runWeekly(cmd *cobra.Command, f weeklyFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if f.logDir != "" {
		cfg.Report.LogDir = f.logDir
	}

	raw := f.companies
	if strings.TrimSpace(raw) == "" {
		raw = cfg.Orchestrator.Companies
	}
	keys, unknown := sources.ParseKeys(raw, sources.DefaultOrder)
	if len(unknown) > 0 {
		rt.logger.Warn("unknown company keys will be skipped", zap.Strings("keys", unknown))
	}
	if len(keys) == 0 || len(unknown) == len(keys) {
		fmt.Fprintln(cmd.OutOrStdout(), "No companies selected.")
		return &exitError{code: ExitNoCompanies}
	}

	a, err := newApp(cmd.Context(), cfg, rt.logger, app.Options{DryRun: f.dryRun})
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer a.Close()

	run, uri, err := a.RunWeekly(cmd.Context(), keys, app.WeeklyOptions{
		QualityGate: cfg.Orchestrator.QualityGate && !f.noQualityGate,
		Concurrency: f.concurrency,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "finished: ok=%d skip=%d fail=%d exit_code=%d\n", run.OK, run.Skip, run.Fail, run.ExitCode)
	fmt.Fprintf(out, "log: %s\n", uri)
	if run.ExitCode != ExitOK {
		return &exitError{code: run.ExitCode}
	}
	return nil
}
