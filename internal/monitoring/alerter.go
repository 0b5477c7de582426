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

	"github.com/retail-lens/wb-crawler/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCatalogFailureRate AlertType = "catalog_failure_rate"
	AlertSmokeFailure       AlertType = "smoke_failure"
	AlertEmptyRun           AlertType = "empty_run"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunReport is the run outcome the alerter evaluates.
type RunReport struct {
	CatalogsTotal int
	CatalogsOK    int
	Retried       int
	Products      int
}

// Alerter evaluates run and smoke outcomes against configured thresholds
// and sends alerts via webhook when they are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EvaluateRun checks a finished run against the failure-rate threshold.
func (a *Alerter) EvaluateRun(r RunReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if r.CatalogsTotal == 0 {
		return nil
	}

	failed := r.CatalogsTotal - r.CatalogsOK
	failRate := float64(failed) / float64(r.CatalogsTotal)
	if a.cfg.FailureRateThreshold > 0 && failRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCatalogFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Catalog failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d total)",
				failRate*100, a.cfg.FailureRateThreshold*100, failed, r.CatalogsTotal,
			),
			Details: map[string]any{
				"failure_rate": failRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       failed,
				"total":        r.CatalogsTotal,
				"retried":      r.Retried,
			},
			Timestamp: now,
		})
	}

	if r.Products == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertEmptyRun,
			Severity: "high",
			Message:  fmt.Sprintf("Run finished with zero products across %d catalogs", r.CatalogsTotal),
			Details: map[string]any{
				"catalogs_total": r.CatalogsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// EvaluateSmoke turns a failed smoke check into an alert.
func (a *Alerter) EvaluateSmoke(res *CheckResult) []Alert {
	if res == nil || res.OK {
		return nil
	}
	return []Alert{{
		Type:     AlertSmokeFailure,
		Severity: "high",
		Message:  "Smoke check failed: " + res.Reason,
		Details: map[string]any{
			"catalogs_probed": len(res.Catalogs),
		},
		Timestamp: time.Now().UTC(),
	}}
}

// SendAlerts delivers alerts to the configured webhook URL and returns how
// many were sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
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
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
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
