package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLedgerUnconfirmed AlertType = "ledger_unconfirmed"
	AlertPassStreak        AlertType = "pass_streak"
	AlertAbstentionRate    AlertType = "abstention_rate"
	AlertBreakerOpen       AlertType = "breaker_open"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
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

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Unconfirmed acquisitions need a human regardless of thresholds.
	if n := len(snap.UnconfirmedLedger); n > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertLedgerUnconfirmed,
			Severity: "critical",
			Message: fmt.Sprintf(
				"%d acquisition(s) in last %dd were not confirmed in the ledger: %s",
				n, snap.LookbackDays, strings.Join(snap.UnconfirmedLedger, ", "),
			),
			Details: map[string]any{
				"sessions": snap.UnconfirmedLedger,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MaxPassStreak > 0 && snap.PassStreak >= a.cfg.MaxPassStreak {
		alerts = append(alerts, Alert{
			Type:     AlertPassStreak,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d consecutive sessions passed (threshold %d)",
				snap.PassStreak, a.cfg.MaxPassStreak,
			),
			Details: map[string]any{
				"pass_streak": snap.PassStreak,
				"threshold":   a.cfg.MaxPassStreak,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MaxAbstentionRate > 0 && snap.Sessions > 0 && snap.AbstentionRate > a.cfg.MaxAbstentionRate {
		alerts = append(alerts, Alert{
			Type:     AlertAbstentionRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Archetype abstention rate %.1f%% exceeds threshold %.1f%% over %d sessions in last %dd",
				snap.AbstentionRate*100, a.cfg.MaxAbstentionRate*100, snap.Sessions, snap.LookbackDays,
			),
			Details: map[string]any{
				"abstention_rate": snap.AbstentionRate,
				"threshold":       a.cfg.MaxAbstentionRate,
				"sessions":        snap.Sessions,
			},
			Timestamp: now,
		})
	}

	var open []string
	for name, state := range snap.Breakers {
		if state == resilience.StateOpen {
			open = append(open, name)
		}
	}
	if len(open) > 0 {
		sort.Strings(open)
		alerts = append(alerts, Alert{
			Type:      AlertBreakerOpen,
			Severity:  "high",
			Message:   fmt.Sprintf("Circuit breaker open for: %s", strings.Join(open, ", ")),
			Details:   map[string]any{"breakers": open},
			Timestamp: now,
		})
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

	return resilience.CheckResponse("monitoring.webhook", resp)
}
