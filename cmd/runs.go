package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/retail-lens/wb-crawler/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect crawl run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent crawl runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its per-catalog stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		stats, err := st.ListCatalogStats(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
		if len(stats) > 0 {
			fmt.Fprintln(os.Stdout)
			formatCatalogStats(os.Stdout, stats)
		}
		return nil
	},
}

func formatRunsList(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTARTED\tDURATION\tCATALOGS\tOK\tPRODUCTS")
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Mode, r.StartedAt.Format(time.RFC3339), dur,
			r.CatalogsTotal, r.CatalogsOK, r.Products)
	}
	tw.Flush() //nolint:errcheck
}

func formatCatalogStats(w io.Writer, stats []store.CatalogStat) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATALOG\tSTATUS\tTOTAL\tHARVESTED\tPARSED\tPARSED%\tRETRIED")
	for _, s := range stats {
		retried := ""
		if s.Retried {
			retried = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f\t%s\n",
			s.Name, s.Status, s.TotalItems, s.Harvested, s.Parsed, s.ParsedPct, retried)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
