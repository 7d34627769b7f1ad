package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var now = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func entry(daysAgo int, artist, category, price string) model.LedgerEntry {
	return model.LedgerEntry{
		SessionID:   "s-" + artist,
		CandidateID: "c-" + artist,
		Date:        now.AddDate(0, 0, -daysAgo),
		ArtistID:    artist,
		Category:    category,
		Price:       decimal.RequireFromString(price),
		Currency:    "ETH",
	}
}

// --- Ledger ---

func TestSQLite_Ledger_AppendAndCounters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Append(ctx, entry(1, "zoe ko", "generative", "1.25")))
	require.NoError(t, st.Append(ctx, entry(5, "zoe ko", "generative", "2.5")))
	require.NoError(t, st.Append(ctx, entry(10, "ana", "photography", "0.1")))
	require.NoError(t, st.Append(ctx, entry(45, "zoe ko", "generative", "9")))

	w := model.Window{AsOf: now, Days: 30}

	n, err := st.CountByArtist(ctx, "zoe ko", w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum, err := st.SumByCategory(ctx, "generative", w)
	require.NoError(t, err)
	assert.Equal(t, "3.75", sum.String())

	spent, err := st.SumSpent(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, "3.85", spent.String())

	empty, err := st.SumByCategory(ctx, "sculpture", w)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestSQLite_Ledger_OnePerDay(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Append(ctx, entry(0, "a", "generative", "1")))
	err := st.Append(ctx, entry(0, "b", "generative", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append ledger entry")

	has, err := st.HasEntryOn(ctx, now.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = st.HasEntryOn(ctx, now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, has)

	entries, err := st.ListEntries(ctx, LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLite_Ledger_ListEntries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Append(ctx, entry(1, "a", "generative", "1.5")))
	require.NoError(t, st.Append(ctx, entry(2, "b", "photography", "2")))
	require.NoError(t, st.Append(ctx, entry(3, "a", "photography", "3")))

	all, err := st.ListEntries(ctx, LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.StartOfDay(now.AddDate(0, 0, -1)), all[0].Date)
	assert.Equal(t, "1.5", all[0].Price.String())
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())

	byArtist, err := st.ListEntries(ctx, LedgerFilter{ArtistID: "a"})
	require.NoError(t, err)
	assert.Len(t, byArtist, 2)

	byCat, err := st.ListEntries(ctx, LedgerFilter{Category: "photography", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, "b", byCat[0].ArtistID)

	since, err := st.ListEntries(ctx, LedgerFilter{Since: model.StartOfDay(now.AddDate(0, 0, -2))})
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

// --- Sessions ---

func completedSession(t *testing.T, id string, started time.Time, o model.Outcome) *model.DailySession {
	t.Helper()
	ds := model.NewDailySession(id, started)
	ds.CandidatesSeen = 2
	require.NoError(t, ds.Complete(o, model.LedgerNotRequired, nil, started.Add(time.Minute)))
	return ds
}

func TestSQLite_Sessions_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ds := completedSession(t, "s1", now, model.PassOutcome{Reasoning: "No candidates available"})
	require.NoError(t, st.SaveSession(ctx, ds))

	got, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, got.Phase)
	assert.Equal(t, 2, got.CandidatesSeen)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, model.ActionPass, got.Outcome.Action)
	assert.Equal(t, "No candidates available", got.Outcome.Reasoning)

	// Saving again replaces the record.
	ds.CandidatesSeen = 5
	require.NoError(t, st.SaveSession(ctx, ds))
	got, err = st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.CandidatesSeen)
}

func TestSQLite_Sessions_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Sessions_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := model.ArtworkCandidate{ID: "c1", PriceAmount: decimal.NewFromInt(3)}
	require.NoError(t, st.SaveSession(ctx, completedSession(t, "old", now.AddDate(0, 0, -2),
		model.PassOutcome{Reasoning: "nothing"})))
	require.NoError(t, st.SaveSession(ctx, completedSession(t, "mid", now.AddDate(0, 0, -1),
		model.WaitOutcome{Target: target, Consensus: model.ConsensusDecision{Decision: model.DecisionWatch}})))
	require.NoError(t, st.SaveSession(ctx, completedSession(t, "new", now,
		model.PassOutcome{Reasoning: "nothing"})))

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	passes, err := st.ListSessions(ctx, SessionFilter{Action: model.ActionPass})
	require.NoError(t, err)
	assert.Len(t, passes, 2)

	recent, err := st.ListSessions(ctx, SessionFilter{Since: now.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	page, err := st.ListSessions(ctx, SessionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "mid", page[0].ID)
	require.NotNil(t, page[0].Outcome)
	require.NotNil(t, page[0].Outcome.Target)
	assert.Equal(t, "c1", page[0].Outcome.Target.ID)
}
