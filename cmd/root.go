package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "firmcrawl",
	Short: "Crawl licensed corporations from the SFC register and Webb-site",
	Long:  "Discovers licensed corporations on the SFC public register, reassembles each firm from its facet pages, enriches it from Webb-site and upserts the result keyed by CE reference.",
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
