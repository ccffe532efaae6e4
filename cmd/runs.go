package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/monitoring"
	"github.com/sells-group/firmcrawl/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent crawl runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		spider, _ := cmd.Flags().GetString("spider")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Spider: spider, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs check --

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate recent runs against the alert thresholds",
	Long:  "Collects run metrics over monitoring.lookback_window_hours, prints any alerts and posts them to monitoring.webhook_url when set. Exits non-zero when an alert fires.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts := newChecker(st).Check(ctx)
		if len(alerts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All spiders healthy.")
			return nil
		}
		formatAlerts(cmd.OutOrStdout(), alerts)
		return eris.Errorf("runs check: %d alert(s)", len(alerts))
	},
}

func init() {
	runsCmd.AddCommand(runsCheckCmd)
	runsCmd.Flags().String("spider", "", "filter by spider (sfc, webb)")
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.CrawlRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSPIDER\tSTATUS\tSTARTED\tDURATION\tSUMMARY")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t-------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		summary := summarizeStats(r.Stats)
		if r.Status == model.RunStatusFailed {
			summary = r.Error
		}
		if len(summary) > 60 {
			summary = summary[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Spider,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			summary,
		)
	}
	_ = w.Flush()
}

// summarizeStats renders the non-zero counters as k=v pairs in key order.
func summarizeStats(stats map[string]any) string {
	keys := make([]string, 0, len(stats))
	for k, v := range stats {
		if fmt.Sprint(v) == "0" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, stats[k]))
	}
	return strings.Join(parts, " ")
}

// formatAlerts writes one line per alert to out.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tSPIDER\tTYPE\tMESSAGE")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Severity, a.Spider, a.Type, a.Message)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
