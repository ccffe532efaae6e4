package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/config"
	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/extract"
	"github.com/sells-group/firmcrawl/internal/fetcher"
	"github.com/sells-group/firmcrawl/internal/sfc"
	"github.com/sells-group/firmcrawl/internal/webb"
)

var crawlCmd = &cobra.Command{
	Use:       "crawl [sfc|webb|all]...",
	Short:     "Crawl one or both sources and upsert the firms",
	Long:      "Runs the SFC register spider and/or the Webb-site spider. With no arguments or \"all\" both run, SFC first.",
	ValidArgs: []string{"sfc", "webb", "all"},
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if partitions, _ := cmd.Flags().GetStringSlice("partitions"); len(partitions) > 0 {
			cfg.SFC.Partitions = partitions
		}
		if cmd.Flags().Changed("history") {
			cfg.Webb.IncludeHistory, _ = cmd.Flags().GetBool("history")
		}

		st, err := initStore(ctx, "crawl")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := buildRegistry(cfg, newFetcher(cfg.Fetch))
		if err != nil {
			return err
		}

		engine := crawl.NewEngine(reg, st, crawl.StoreSinks(st))
		start := time.Now()
		summary, err := engine.Run(ctx, spiderNames(args))
		if err != nil {
			return eris.Wrap(err, "crawl")
		}

		zap.L().Info("crawl finished",
			zap.Strings("succeeded", summary.Succeeded),
			zap.Strings("failed", summary.Failed),
			zap.Duration("elapsed", time.Since(start)),
		)
		if len(summary.Failed) > 0 {
			return eris.Errorf("crawl: %d spider(s) failed: %s", len(summary.Failed), strings.Join(summary.Failed, ", "))
		}
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringSlice("partitions", nil, "override sfc.partitions (e.g. A,B,Q)")
	crawlCmd.Flags().Bool("history", false, "fetch Webb-site head-count history for every firm")
	rootCmd.AddCommand(crawlCmd)
}

// knownSpiders lists the registry names in run order.
var knownSpiders = []string{"sfc", "webb"}

// spiderNames maps CLI arguments to registry names. "all" or no argument
// selects every spider.
func spiderNames(args []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, a := range args {
		if a == "all" {
			return nil
		}
		if !seen[a] {
			seen[a] = true
			names = append(names, a)
		}
	}
	return names
}

func newFetcher(c config.FetchConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.UserAgent,
		Timeout:      time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries:   c.MaxRetries,
		RatePerSec:   c.RatePerSec,
		DetectBlocks: c.DetectBlocks,
	})
}

// buildRegistry wires both spiders from config.
func buildRegistry(c *config.Config, f fetcher.Fetcher) (*crawl.Registry, error) {
	var facets *extract.FacetTable
	if c.SFC.FacetsFile != "" {
		t, err := extract.LoadFacetTable(c.SFC.FacetsFile)
		if err != nil {
			return nil, fmt.Errorf("load facets: %w", err)
		}
		facets = t
	}

	sfcSpider := sfc.NewSpider(f, facets, sfc.Options{
		BaseURL:    c.SFC.BaseURL,
		Partitions: c.SFC.Partitions,
		Search: sfc.SearchOptions{
			RAType:   c.SFC.RAType,
			PageSize: c.SFC.PageSize,
		},
		PartitionConcurrency: c.SFC.PartitionConcurrency,
		FacetConcurrency:     c.Crawl.MaxConcurrency,
	})
	webbSpider := webb.NewSpider(f, webb.Options{
		BaseURL:        c.Webb.BaseURL,
		RAType:         c.Webb.RAType,
		Concurrency:    c.Crawl.MaxConcurrency,
		IncludeHistory: c.Webb.IncludeHistory,
	})

	return crawl.NewRegistry(sfcSpider, webbSpider), nil
}
