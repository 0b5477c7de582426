package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect the proxy pool",
}

var proxiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every proxy against the health-check battery",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initCrawlEnv()
		if err != nil {
			return err
		}

		if err := env.Registry.Refresh(ctx); err != nil {
			return eris.Wrap(err, "probe proxies")
		}

		statuses := env.Registry.Statuses()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROXY\tSTATUS")
		for addr, status := range statuses {
			fmt.Fprintf(w, "%s\t%s\n", addr, status)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "\n%d/%d reachable\n", env.Registry.Len(), env.Registry.PoolSize())
		if env.Registry.Len() == 0 {
			return eris.New("no reachable proxies")
		}
		return nil
	},
}

func init() {
	proxiesCmd.AddCommand(proxiesCheckCmd)
	rootCmd.AddCommand(proxiesCmd)
}
