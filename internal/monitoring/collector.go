package monitoring

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
	"github.com/sells-group/curator-cli/internal/store"
)

// maxSessions bounds how many audit records one snapshot reads.
const maxSessions = 1000

// MetricsSnapshot holds a point-in-time view of curator health.
type MetricsSnapshot struct {
	// Session metrics (within lookback window).
	Sessions          int     `json:"sessions"`
	Acquisitions      int     `json:"acquisitions"`
	Waits             int     `json:"waits"`
	Passes            int     `json:"passes"`
	PassStreak        int     `json:"pass_streak"`
	AbstentionRate    float64 `json:"abstention_rate"`
	AvgCandidatesSeen float64 `json:"avg_candidates_seen"`
	SourceFailures    int     `json:"source_failures"`

	// Acquisitions whose ledger write was never confirmed.
	UnconfirmedLedger []string `json:"unconfirmed_ledger,omitempty"`

	// Ledger metrics.
	LedgerEntries int             `json:"ledger_entries"`
	SpentInWindow decimal.Decimal `json:"spent_in_window"`

	Breakers map[string]resilience.BreakerState `json:"breakers,omitempty"`

	// Metadata.
	LookbackDays int       `json:"lookback_days"`
	CollectedAt  time.Time `json:"collected_at"`
}

// BreakerSource exposes circuit breaker states, e.g. *resilience.Breakers.
type BreakerSource interface {
	Snapshot() map[string]resilience.BreakerState
}

// Collector gathers metrics from the session audit and the ledger.
type Collector struct {
	sessions store.SessionStore
	ledger   store.Ledger
	breakers BreakerSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(sessions store.SessionStore, ledger store.Ledger, breakers BreakerSource) *Collector {
	return &Collector{sessions: sessions, ledger: ledger, breakers: breakers, now: time.Now}
}

// Collect gathers a snapshot of curator metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackDays int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	window := model.Window{AsOf: now, Days: lookbackDays}
	snap := &MetricsSnapshot{
		LookbackDays:  lookbackDays,
		CollectedAt:   now,
		SpentInWindow: decimal.Zero,
	}

	// Newest first.
	sessions, err := c.sessions.ListSessions(ctx, store.SessionFilter{
		Since: window.Since(),
		Limit: maxSessions,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	snap.Sessions = len(sessions)
	var (
		rates    []float64
		seen     []float64
		streakOn = true
	)
	for _, s := range sessions {
		seen = append(seen, float64(s.CandidatesSeen))
		if s.SourceError != "" {
			snap.SourceFailures++
		}
		if rate, ok := abstentionRate(s); ok {
			rates = append(rates, rate)
		}

		action := model.ActionPass
		if s.Outcome != nil {
			action = s.Outcome.Action
		}
		switch action {
		case model.ActionAcquire:
			snap.Acquisitions++
			if s.Report().NeedsReconciliation() {
				snap.UnconfirmedLedger = append(snap.UnconfirmedLedger, s.ID)
			}
		case model.ActionWait:
			snap.Waits++
		default:
			snap.Passes++
		}

		if streakOn && action == model.ActionPass {
			snap.PassStreak++
		} else {
			streakOn = false
		}
	}

	// stats returns an error for empty input; zero is the right answer there.
	if mean, err := stats.Mean(rates); err == nil {
		snap.AbstentionRate = mean
	}
	if mean, err := stats.Mean(seen); err == nil {
		snap.AvgCandidatesSeen = mean
	}

	if c.ledger != nil {
		entries, err := c.ledger.ListEntries(ctx, store.LedgerFilter{Since: window.Since(), Limit: maxSessions})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list ledger entries")
		}
		snap.LedgerEntries = len(entries)

		spent, err := c.ledger.SumSpent(ctx, window)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: sum spent")
		}
		snap.SpentInWindow = spent
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.Snapshot()
	}

	return snap, nil
}

// abstentionRate is the share of policy slots that abstained in one session.
func abstentionRate(s model.DailySession) (float64, bool) {
	var slots, abstained int
	for _, e := range s.Evaluations {
		slots += len(e.Decisions) + len(e.Abstentions)
		abstained += len(e.Abstentions)
	}
	if slots == 0 {
		return 0, false
	}
	return float64(abstained) / float64(slots), true
}
