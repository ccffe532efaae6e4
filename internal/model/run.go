package model

import "time"

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CrawlRun records one execution of a spider.
type CrawlRun struct {
	ID          string         `json:"id"`
	Spider      string         `json:"spider"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Stats       map[string]any `json:"stats,omitempty"`
	Error       string         `json:"error,omitempty"`
}
