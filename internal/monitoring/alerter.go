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

	"github.com/sells-group/food-access-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPlaceFailureRate AlertType = "place_failure_rate"
	AlertEmptyResultRate  AlertType = "empty_result_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
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

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Windows with fewer than MinPlaces finished places never alert.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Total()
	if finished == 0 || finished < a.cfg.MinPlaces {
		return nil
	}

	if a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertPlaceFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Place failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished since %s)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.WindowStart.Format(time.RFC3339),
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
				"retries":      snap.Retries,
			},
			Timestamp: now,
		})
	}

	if a.cfg.EmptyRateThreshold > 0 && snap.EmptyRate > a.cfg.EmptyRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertEmptyResultRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of places returned no road network (threshold %.1f%%)",
				snap.EmptyRate*100, a.cfg.EmptyRateThreshold*100,
			),
			Details: map[string]any{
				"empty_rate": snap.EmptyRate,
				"threshold":  a.cfg.EmptyRateThreshold,
				"empty":      snap.Empty,
				"finished":   finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and logs each
// one. Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert triggered",
			zap.String("type", string(alert.Type)),
			zap.String("message", alert.Message),
		)
	}
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
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
