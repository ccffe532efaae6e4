package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertNoSuccess      AlertType = "no_successful_run"
	AlertPersistErrors  AlertType = "persist_errors"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Spider    string         `json:"spider"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts,
// ordered by spider name.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, name := range snap.SpiderNames() {
		m := snap.Spiders[name]

		finished := m.Complete + m.Failed
		if finished >= 2 && m.FailRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRunFailureRate,
				Spider:   name,
				Severity: "high",
				Message: fmt.Sprintf(
					"%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
					name, m.FailRate*100, a.cfg.FailureRateThreshold*100,
					m.Failed, finished, snap.LookbackHours,
				),
				Details: map[string]any{
					"failure_rate": m.FailRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       m.Failed,
					"finished":     finished,
				},
				Timestamp: now,
			})
		}

		if m.Complete == 0 && m.Running == 0 {
			alerts = append(alerts, Alert{
				Type:     AlertNoSuccess,
				Spider:   name,
				Severity: "high",
				Message:  fmt.Sprintf("%s has no successful run in last %dh", name, snap.LookbackHours),
				Details: map[string]any{
					"total":  m.Total,
					"failed": m.Failed,
				},
				Timestamp: now,
			})
		}

		if m.EmitErrors > 0 {
			alerts = append(alerts, Alert{
				Type:     AlertPersistErrors,
				Spider:   name,
				Severity: "medium",
				Message:  fmt.Sprintf("%s failed to persist %d record(s) in last %dh", name, m.EmitErrors, snap.LookbackHours),
				Details: map[string]any{
					"emit_errors": m.EmitErrors,
					"emitted":     m.Emitted,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("spider", alert.Spider),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("spider", alert.Spider),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
