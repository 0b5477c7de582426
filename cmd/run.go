package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/report"
)

var (
	runBrands bool
	runBySKU  bool
	runNoShip bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full crawl and write the daily report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mode := "catalogs"
		if runBrands {
			mode = "brands"
		}
		if runBySKU {
			mode = "skus"
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		env, err := initCrawlEnv()
		if err != nil {
			return err
		}

		catalogs, err := loadTargets(ctx, mode)
		if err != nil {
			return eris.Wrap(err, "load targets")
		}
		zap.L().Info("crawl targets loaded",
			zap.String("mode", mode),
			zap.Int("catalogs", len(catalogs)),
		)

		writer, err := report.NewWriter(cfg.Report.Dir, cfg.Report.FilePrefix)
		if err != nil {
			return eris.Wrap(err, "open report")
		}

		orch := newOrchestrator(env, st, writer)

		summary, err := orch.Run(ctx, catalogs, mode == "skus")
		if err != nil {
			return eris.Wrap(err, "crawl run")
		}

		if err := shipReport(ctx, writer, summary.Products); err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.EvaluateRun(monitoring.RunReport{
			CatalogsTotal: summary.CatalogsTotal,
			CatalogsOK:    summary.CatalogsOK,
			Retried:       summary.Retried,
			Products:      summary.Products,
		})
		alerter.SendAlerts(ctx, alerts)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// shipReport deduplicates, archives and uploads the finished report. An
// empty run leaves the file alone so the header-only CSV is easy to spot.
func shipReport(ctx context.Context, writer *report.Writer, products int) error {
	if products == 0 {
		zap.L().Warn("run produced no products, skipping report shipment")
		return nil
	}

	if err := writer.Dedup(); err != nil {
		return eris.Wrap(err, "dedup report")
	}
	archive, err := writer.Archive()
	if err != nil {
		return eris.Wrap(err, "archive report")
	}
	zap.L().Info("report archived", zap.String("path", archive))

	if runNoShip {
		return nil
	}

	start := time.Now()
	if err := report.Upload(ctx, cfg.Report, archive); err != nil {
		return eris.Wrap(err, "upload report")
	}
	zap.L().Info("report uploaded", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runBrands, "brands", false, "crawl the brand list instead of the catalog list")
	runCmd.Flags().BoolVar(&runBySKU, "by-sku", false, "extract a fixed SKU list, skipping discovery and harvest")
	runCmd.Flags().BoolVar(&runNoShip, "no-upload", false, "archive the report but skip the FTP upload")
	runCmd.MarkFlagsMutuallyExclusive("brands", "by-sku")
	rootCmd.AddCommand(runCmd)
}
