package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackDays: 30}
	checker := NewChecker(newCollector(&mockSessions{}, nil, nil), NewAlerter(cfg), cfg)

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
	checker := NewChecker(newCollector(&mockSessions{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackDays: 30, MaxPassStreak: 2}
	sessions := &mockSessions{sessions: []model.DailySession{
		session("s3", 0, model.ActionPass, model.LedgerNotRequired),
		session("s2", 1, model.ActionPass, model.LedgerNotRequired),
		session("s1", 2, model.ActionAcquire, model.LedgerFailed),
	}}
	checker := NewChecker(newCollector(sessions, nil, nil), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertLedgerUnconfirmed, alerts[0].Type)
	assert.Equal(t, AlertPassStreak, alerts[1].Type)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackDays: 30}
	checker := NewChecker(newCollector(&mockSessions{listErr: assert.AnError}, nil, nil), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
}
