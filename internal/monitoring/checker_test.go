package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmcrawl/internal/config"
	"github.com/sells-group/firmcrawl/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.5,
	}
	checker := NewChecker(NewCollector(&mockRuns{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockRuns{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.5}
	runs := &mockRuns{runs: []model.CrawlRun{
		{Spider: "sfc", Status: model.RunStatusFailed, StartedAt: time.Now().Add(-time.Hour)},
	}}
	checker := NewChecker(NewCollector(runs, []string{"sfc"}), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoSuccess, alerts[0].Type)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockRuns{err: eris.New("boom")}, nil), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
}
