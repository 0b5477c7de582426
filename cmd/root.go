package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wb-crawler",
	Short: "Wildberries catalog crawler",
	Long:  "Walks configured catalogs through price-window discovery, listing harvest and per-product extraction, and writes a delimited daily report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
