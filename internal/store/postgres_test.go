package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Append(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger`).
		WithArgs(pgxmock.AnyArg(), "s1", "c1", model.StartOfDay(now), "zoe ko", "generative",
			"3.5", "ETH", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.Append(context.Background(), model.LedgerEntry{
		SessionID:   "s1",
		CandidateID: "c1",
		Date:        now,
		ArtistID:    "zoe ko",
		Category:    "generative",
		Price:       decimal.RequireFromString("3.5"),
		Currency:    "ETH",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger`).WillReturnError(errors.New("duplicate key value"))
	mock.ExpectRollback()

	err := s.Append(context.Background(), entry(0, "a", "generative", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append ledger entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByArtist(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	w := model.Window{AsOf: now, Days: 30}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ledger WHERE artist_id = \$1`).
		WithArgs("zoe ko", w.Since(), w.AsOf).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountByArtist(context.Background(), "zoe ko", w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Sums(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	w := model.Window{AsOf: now, Days: 30}

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(price\), 0\)::text FROM ledger WHERE category = \$1`).
		WithArgs("generative", w.Since(), w.AsOf).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("12.750000000000000000"))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(price\), 0\)::text FROM ledger WHERE date >= \$1`).
		WithArgs(w.Since(), w.AsOf).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("0"))

	cat, err := s.SumByCategory(context.Background(), "generative", w)
	require.NoError(t, err)
	assert.True(t, cat.Equal(decimal.RequireFromString("12.75")))

	spent, err := s.SumSpent(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, spent.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasEntryOn(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(model.StartOfDay(now)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := s.HasEntryOn(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEntries(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	day := model.StartOfDay(now)

	mock.ExpectQuery(`FROM ledger WHERE true AND artist_id = \$1 ORDER BY date DESC LIMIT \$2`).
		WithArgs("zoe ko", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "candidate_id", "date", "artist_id", "category", "price", "currency", "created_at",
		}).AddRow("e1", "s1", "c1", day, "zoe ko", "generative", "3.500000000000000000", "ETH", now))

	entries, err := s.ListEntries(context.Background(), LedgerFilter{ArtistID: "zoe ko"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID)
	assert.True(t, entries[0].Price.Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, day, entries[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ds := completedSession(t, "s1", now, model.PassOutcome{Reasoning: "nothing"})

	mock.ExpectExec(`(?s)INSERT INTO sessions.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("s1", ds.Date, "complete", "pass", "not_required",
			pgxmock.AnyArg(), ds.StartedAt, ds.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSession(context.Background(), ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM sessions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := now.Add(-48 * time.Hour)

	mock.ExpectQuery(`SELECT data FROM sessions WHERE true AND action = \$1 AND started_at >= \$2 ORDER BY started_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("acquire", since, 10, 5).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"s9","phase":"complete","outcome":{"action":"acquire","budget_allocated":"3","reasoning":"x"}}`)))

	out, err := s.ListSessions(context.Background(), SessionFilter{
		Action: model.ActionAcquire, Since: since, Limit: 10, Offset: 5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "s9", out[0].ID)
	assert.Equal(t, model.ActionAcquire, out[0].Outcome.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
