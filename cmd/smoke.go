package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/retail-lens/wb-crawler/internal/monitoring"
	"github.com/retail-lens/wb-crawler/internal/wbapi"
)

var smokeBrands bool

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Probe a sample of catalogs end to end",
	Long:  "Counts items, fetches one listing page and extracts a handful of products for a few sampled catalogs. A cheap go/no-go check before a full crawl.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initCrawlEnv()
		if err != nil {
			return err
		}
		if err := env.Registry.Refresh(ctx); err != nil {
			return eris.Wrap(err, "probe proxies")
		}

		mode := "catalogs"
		if smokeBrands {
			mode = "brands"
		}
		catalogs, err := loadTargets(ctx, mode)
		if err != nil {
			return eris.Wrap(err, "load targets")
		}

		checker := monitoring.NewChecker(env.API, env.Extractor, monitoring.CheckerOptions{
			Catalogs: cfg.Monitoring.SmokeCatalogs,
			Products: cfg.Monitoring.SmokeProducts,
			MaxPrice: cfg.Crawl.MaxPrice,
		})
		result, err := checker.Run(ctx, catalogs, wbapi.FetchUserSettings(ctx, env.Client))
		if err != nil {
			return eris.Wrap(err, "smoke check")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerter.SendAlerts(ctx, alerter.EvaluateSmoke(result))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.OK {
			return eris.New("smoke check failed")
		}
		return nil
	},
}

func init() {
	smokeCmd.Flags().BoolVar(&smokeBrands, "brands", false, "sample the brand list instead of the catalog list")
	rootCmd.AddCommand(smokeCmd)
}
