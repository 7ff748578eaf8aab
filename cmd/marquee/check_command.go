package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marquee/internal/catalog"
	"marquee/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		reconcile bool
		probe     bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks and report catalog health",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			results := preflight.RunAll(cmd.Context(), cfg, store, preflight.Options{Probe: probe})
			checkRows := make([][]string, 0, len(results))
			for _, r := range results {
				checkRows = append(checkRows, []string{r.Name, yesNo(r.Passed), yesNo(r.Required), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Passed", "Required", "Detail"}, checkRows, nil))
			if err := preflight.Error(results); err != nil {
				return err
			}

			counts, err := store.StatusCounts(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(catalog.Statuses()))
			total := 0
			for _, status := range catalog.Statuses() {
				rows = append(rows, []string{string(status), fmt.Sprintf("%d", counts[status])})
				total += counts[status]
			}
			rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
			fmt.Fprintln(out, renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))

			if reconcile {
				results, err := store.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				recRows := make([][]string, 0, len(results))
				for _, r := range results {
					recRows = append(recRows, []string{string(r.Flag), r.Source, fmt.Sprintf("%d", r.Raised), fmt.Sprintf("%d", r.Orphaned)})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Flag", "Source", "Raised", "Orphaned"}, recRows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
				))
			}

			violations, err := store.CompletenessViolations(cmd.Context())
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				fmt.Fprintln(out, "No completeness violations")
			} else {
				fmt.Fprintf(out, "%d complete items are missing data:\n", len(violations))
				for _, item := range violations {
					fmt.Fprintf(out, "  - %s (id %d): missing %v\n", item.DisplayTitle(), item.ProviderID, item.MissingFlags())
				}
			}

			retries, err := store.RetryEntries(cmd.Context())
			if err != nil {
				return err
			}
			if len(retries) > 0 {
				fmt.Fprintf(out, "%d items queued for retry\n", len(retries))
			}
			if len(violations) > 0 && !reconcile {
				return fmt.Errorf("catalog has %d completeness violations; rerun with --reconcile", len(violations))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Also probe provider reachability over the network")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Raise flags whose data exists and recompute statuses")
	return cmd
}
