package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/companyloc-platform/internal/app"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered source adapters and their status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			reg := app.BuildRegistry(rt.cfg, app.NewLimiter(rt.cfg), rt.logger)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCOMPANY\tSTATUS\tPAGE PACING\tDETAIL PACING")
			for _, key := range reg.Keys() {
				src, _ := reg.Lookup(key)
				status := "enabled"
				if sk, ok := src.(ingest.Skipper); ok {
					if off, reason := sk.Disabled(); off {
						status = "disabled (" + reason + ")"
					}
				}
				p := rt.cfg.PacingFor(key)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d-%dms\t%d-%dms\n", key, sources.DisplayName(key), status,
					p.PageMinMs, p.PageMaxMs, p.DetailMinMs, p.DetailMaxMs)
			}
			return w.Flush()
		},
	}
}
