// Package monitoring watches crawl run history and raises alerts when
// spiders fail, stop succeeding or lose records at persistence.
package monitoring

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/store"
)

// RunLister is the slice of the store the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CrawlRun, error)
}

// SpiderMetrics summarizes one spider's runs inside the lookback window.
type SpiderMetrics struct {
	Total       int        `json:"total"`
	Complete    int        `json:"complete"`
	Failed      int        `json:"failed"`
	Running     int        `json:"running"`
	FailRate    float64    `json:"fail_rate"`
	Emitted     int64      `json:"emitted"`
	EmitErrors  int64      `json:"emit_errors"`
	FacetErrors int64      `json:"facet_errors"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of crawl health.
type MetricsSnapshot struct {
	Spiders map[string]*SpiderMetrics `json:"spiders"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SpiderNames returns the spiders in the snapshot in name order.
func (s *MetricsSnapshot) SpiderNames() []string {
	names := make([]string, 0, len(s.Spiders))
	for n := range s.Spiders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

const maxRunsScanned = 10000

// Collector gathers run metrics from the run log.
type Collector struct {
	runs    RunLister
	spiders []string
	now     func() time.Time
}

// NewCollector creates a collector. Every name in spiders appears in each
// snapshot even when it has no runs in the window.
func NewCollector(runs RunLister, spiders []string) *Collector {
	return &Collector{runs: runs, spiders: spiders, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		Spiders:       make(map[string]*SpiderMetrics),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	for _, name := range c.spiders {
		snap.Spiders[name] = &SpiderMetrics{}
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: maxRunsScanned})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		m, ok := snap.Spiders[r.Spider]
		if !ok {
			m = &SpiderMetrics{}
			snap.Spiders[r.Spider] = m
		}
		m.Total++
		switch r.Status {
		case model.RunStatusComplete:
			m.Complete++
			if r.CompletedAt != nil && (m.LastSuccess == nil || r.CompletedAt.After(*m.LastSuccess)) {
				done := *r.CompletedAt
				m.LastSuccess = &done
			}
		case model.RunStatusFailed:
			m.Failed++
		case model.RunStatusRunning:
			m.Running++
		}
		m.Emitted += statInt(r.Stats["emitted"])
		m.EmitErrors += statInt(r.Stats["emit_errors"])
		m.FacetErrors += statInt(r.Stats["facet_errors"])
	}

	for _, m := range snap.Spiders {
		if finished := m.Complete + m.Failed; finished > 0 {
			m.FailRate = float64(m.Failed) / float64(finished)
		}
	}
	return snap, nil
}

// statInt reads a counter from run stats that may have been through JSON.
func statInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
