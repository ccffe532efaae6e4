package monitoring

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/store"
)

type mockRuns struct {
	runs []model.CrawlRun
	err  error
}

func (m *mockRuns) ListRuns(_ context.Context, _ store.RunFilter) ([]model.CrawlRun, error) {
	return m.runs, m.err
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCollector(runs RunLister, spiders ...string) *Collector {
	c := NewCollector(runs, spiders)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	done1 := fixedNow.Add(-2 * time.Hour)
	done2 := fixedNow.Add(-1 * time.Hour)
	runs := &mockRuns{runs: []model.CrawlRun{
		{Spider: "sfc", Status: model.RunStatusComplete, StartedAt: fixedNow.Add(-3 * time.Hour), CompletedAt: &done1,
			Stats: map[string]any{"emitted": float64(10), "emit_errors": float64(1)}},
		{Spider: "sfc", Status: model.RunStatusComplete, StartedAt: fixedNow.Add(-90 * time.Minute), CompletedAt: &done2,
			Stats: map[string]any{"emitted": json.Number("5"), "facet_errors": 3}},
		{Spider: "sfc", Status: model.RunStatusFailed, StartedAt: fixedNow.Add(-30 * time.Minute)},
		{Spider: "webb", Status: model.RunStatusRunning, StartedAt: fixedNow.Add(-10 * time.Minute)},
		// Outside the window.
		{Spider: "webb", Status: model.RunStatusFailed, StartedAt: fixedNow.Add(-48 * time.Hour)},
	}}

	snap, err := newTestCollector(runs, "sfc", "webb").Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
	assert.Equal(t, []string{"sfc", "webb"}, snap.SpiderNames())

	sfc := snap.Spiders["sfc"]
	assert.Equal(t, 3, sfc.Total)
	assert.Equal(t, 2, sfc.Complete)
	assert.Equal(t, 1, sfc.Failed)
	assert.InDelta(t, 1.0/3.0, sfc.FailRate, 0.0001)
	assert.Equal(t, int64(15), sfc.Emitted)
	assert.Equal(t, int64(1), sfc.EmitErrors)
	assert.Equal(t, int64(3), sfc.FacetErrors)
	require.NotNil(t, sfc.LastSuccess)
	assert.Equal(t, done2, *sfc.LastSuccess)

	webb := snap.Spiders["webb"]
	assert.Equal(t, 1, webb.Total)
	assert.Equal(t, 1, webb.Running)
	assert.Zero(t, webb.FailRate)
}

func TestCollector_KnownSpiderWithoutRuns(t *testing.T) {
	snap, err := newTestCollector(&mockRuns{}, "sfc").Collect(context.Background(), 24)
	require.NoError(t, err)
	require.Contains(t, snap.Spiders, "sfc")
	assert.Zero(t, snap.Spiders["sfc"].Total)
}

func TestCollector_Error(t *testing.T) {
	_, err := newTestCollector(&mockRuns{err: eris.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestStatInt(t *testing.T) {
	assert.Equal(t, int64(3), statInt(3))
	assert.Equal(t, int64(4), statInt(int64(4)))
	assert.Equal(t, int64(5), statInt(float64(5)))
	assert.Equal(t, int64(6), statInt(json.Number("6")))
	assert.Equal(t, int64(0), statInt(nil))
	assert.Equal(t, int64(0), statInt("x"))
}
