package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	runs := []model.CrawlRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Spider:      "sfc",
			Status:      model.RunStatusComplete,
			StartedAt:   now,
			CompletedAt: &done,
			Stats:       map[string]any{"emitted": 12, "facet_errors": 0},
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Spider:    "webb",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "SPIDER")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "emitted=12")
	assert.NotContains(t, output, "facet_errors")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.CrawlRun{
		{
			ID:          "fail0001",
			Spider:      "webb",
			Status:      model.RunStatusFailed,
			StartedAt:   now,
			CompletedAt: &now,
			Error:       "webb: schema drift on ranking page",
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "failed")
	assert.Contains(t, buf.String(), "schema drift")
}

func TestSummarizeStats(t *testing.T) {
	stats := map[string]any{"partitions": 26, "emitted": 3, "empty_partitions": 0}
	assert.Equal(t, "emitted=3 partitions=26", summarizeStats(stats))
	assert.Equal(t, "", summarizeStats(nil))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijkl"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestFormatAlerts(t *testing.T) {
	var buf bytes.Buffer
	formatAlerts(&buf, []monitoring.Alert{
		{Type: monitoring.AlertNoSuccess, Spider: "webb", Severity: "high", Message: "webb has no successful run in last 168h"},
	})

	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "no_successful_run")
	assert.Contains(t, out, "webb has no successful run")
}
