package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailySession_Advance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	s := NewDailySession("s1", now)
	assert.Equal(t, PhaseScanning, s.Phase)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), s.Date)

	require.NoError(t, s.Advance(PhaseEvaluating, now))
	require.NoError(t, s.Advance(PhaseDeciding, now))

	err := s.Advance(PhaseFiltering, now)
	assert.True(t, errors.Is(err, ErrPhaseRegression))

	err = s.Advance(PhaseDeciding, now)
	assert.True(t, errors.Is(err, ErrPhaseRegression))

	assert.Error(t, s.Advance(PhaseComplete, now))
	assert.Error(t, s.Advance(Phase("bogus"), now))
	assert.Len(t, s.Transitions, 3)
}

func TestDailySession_CompleteFreezes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	s := NewDailySession("s1", now)
	require.NoError(t, s.Complete(PassOutcome{Reasoning: "no candidates"}, LedgerNotRequired, nil, now))

	assert.True(t, s.Frozen())
	require.NotNil(t, s.Outcome)
	assert.Equal(t, ActionPass, s.Outcome.Action)
	require.NotNil(t, s.CompletedAt)

	assert.ErrorIs(t, s.Advance(PhaseEvaluating, now), ErrSessionFrozen)
	assert.ErrorIs(t, s.Complete(PassOutcome{}, LedgerNotRequired, nil, now), ErrSessionFrozen)
	assert.Error(t, NewDailySession("s2", now).Complete(nil, LedgerNotRequired, nil, now))
}

func TestSessionReport_NeedsReconciliation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	target := ArtworkCandidate{ID: "c1", PriceAmount: decimal.NewFromInt(3)}
	s := NewDailySession("s1", now)
	require.NoError(t, s.Complete(AcquireOutcome{
		Target:          target,
		Consensus:       ConsensusDecision{Decision: DecisionBuy},
		BudgetAllocated: target.PriceAmount,
	}, LedgerFailed, errors.New("disk full"), now))

	r := s.Report()
	assert.True(t, r.NeedsReconciliation())
	assert.Equal(t, "disk full", r.LedgerError)
	assert.True(t, r.Outcome.BudgetAllocated.Equal(decimal.NewFromInt(3)))
}

func TestDailyOutcome_Variant(t *testing.T) {
	t.Parallel()

	target := ArtworkCandidate{ID: "c1"}
	consensus := ConsensusDecision{Decision: DecisionWatch, Confidence: 0.6}

	for _, o := range []Outcome{
		AcquireOutcome{Target: target, Consensus: consensus, BudgetAllocated: decimal.NewFromInt(2)},
		WaitOutcome{Target: target, Consensus: consensus, Reasoning: "watch"},
		PassOutcome{Reasoning: "nothing"},
	} {
		data, err := json.Marshal(o.Report())
		require.NoError(t, err)

		var decoded DailyOutcome
		require.NoError(t, json.Unmarshal(data, &decoded))

		v, err := decoded.Variant()
		require.NoError(t, err)
		assert.Equal(t, o.Action(), v.Action())
	}

	_, err := DailyOutcome{Action: ActionAcquire}.Variant()
	assert.Error(t, err)
	_, err = DailyOutcome{Action: ActionWait}.Variant()
	assert.Error(t, err)
	_, err = DailyOutcome{Action: "hold"}.Variant()
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	w := Window{AsOf: asOf, Days: 30}
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), w.Since())
	assert.True(t, w.Contains(w.Since()))
	assert.True(t, w.Contains(asOf))
	assert.False(t, w.Contains(asOf.Add(time.Second)))
	assert.False(t, w.Contains(w.Since().Add(-time.Second)))
}
