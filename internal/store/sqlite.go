package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/curator-cli/internal/model"
)

// sqliteTime is fixed width so stored timestamps compare lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ledger (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	date         TEXT NOT NULL,
	artist_id    TEXT NOT NULL,
	category     TEXT NOT NULL,
	price        TEXT NOT NULL,
	currency     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	date          TEXT NOT NULL,
	phase         TEXT NOT NULL,
	action        TEXT,
	ledger_status TEXT,
	data          TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
CREATE INDEX IF NOT EXISTS idx_ledger_artist ON ledger(artist_id, date);
CREATE INDEX IF NOT EXISTS idx_ledger_category ON ledger(category, date);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append writes entry in its own transaction. The unique index on date
// rejects a second acquisition for the same day.
func (s *SQLiteStore) Append(ctx context.Context, e model.LedgerEntry) error {
	e = prepareEntry(e)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger (id, session_id, candidate_id, date, artist_id, category, price, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.CandidateID, formatTime(e.Date), e.ArtistID, e.Category,
		e.Price.String(), e.Currency, formatTime(e.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append ledger entry for session %s", e.SessionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) CountByArtist(ctx context.Context, artistID string, w model.Window) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger WHERE artist_id = ? AND date >= ? AND date <= ?`,
		artistID, formatTime(w.Since()), formatTime(w.AsOf),
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count by artist %s", artistID)
}

// SumByCategory adds prices in Go so the decimal strings never pass through
// SQLite floating point.
func (s *SQLiteStore) SumByCategory(ctx context.Context, category string, w model.Window) (decimal.Decimal, error) {
	return s.sumPrices(ctx,
		`SELECT price FROM ledger WHERE category = ? AND date >= ? AND date <= ?`,
		category, formatTime(w.Since()), formatTime(w.AsOf),
	)
}

func (s *SQLiteStore) SumSpent(ctx context.Context, w model.Window) (decimal.Decimal, error) {
	return s.sumPrices(ctx,
		`SELECT price FROM ledger WHERE date >= ? AND date <= ?`,
		formatTime(w.Since()), formatTime(w.AsOf),
	)
}

func (s *SQLiteStore) sumPrices(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, eris.Wrap(err, "sqlite: sum prices")
	}
	defer rows.Close() //nolint:errcheck

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, eris.Wrap(err, "sqlite: scan price")
		}
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, eris.Wrapf(err, "sqlite: parse price %q", raw)
		}
		total = total.Add(p)
	}
	return total, eris.Wrap(rows.Err(), "sqlite: sum prices iterate")
}

func (s *SQLiteStore) HasEntryOn(ctx context.Context, day time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger WHERE date = ?`, formatTime(model.StartOfDay(day)),
	).Scan(&n)
	return n > 0, eris.Wrap(err, "sqlite: has entry on")
}

func (s *SQLiteStore) ListEntries(ctx context.Context, filter LedgerFilter) ([]model.LedgerEntry, error) {
	query := `SELECT id, session_id, candidate_id, date, artist_id, category, price, currency, created_at
		FROM ledger WHERE 1=1`
	var args []any

	if filter.ArtistID != "" {
		query += ` AND artist_id = ?`
		args = append(args, filter.ArtistID)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if !filter.Since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, formatTime(filter.Since))
	}
	query += ` ORDER BY date DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var date, created, price string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.CandidateID, &date, &e.ArtistID,
			&e.Category, &price, &e.Currency, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		if e.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse price %q", price)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ledger iterate")
}

// SaveSession stores the full session as JSON alongside a few indexed columns.
// Saving the same id again replaces the record.
func (s *SQLiteStore) SaveSession(ctx context.Context, ds *model.DailySession) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	var completed any
	if ds.CompletedAt != nil {
		completed = formatTime(*ds.CompletedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, date, phase, action, ledger_status, data, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			action = excluded.action,
			ledger_status = excluded.ledger_status,
			data = excluded.data,
			completed_at = excluded.completed_at`,
		ds.ID, formatTime(ds.Date), string(ds.Phase), sessionAction(ds), string(ds.LedgerStatus),
		string(data), formatTime(ds.StartedAt), completed,
	)
	return eris.Wrapf(err, "sqlite: save session %s", ds.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.DailySession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	var ds model.DailySession
	if err := json.Unmarshal([]byte(data), &ds); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &ds, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.DailySession, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any

	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, formatTime(filter.Since))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DailySession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		var ds model.DailySession
		if err := json.Unmarshal([]byte(data), &ds); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal session")
		}
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// helpers

func prepareEntry(e model.LedgerEntry) model.LedgerEntry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Date = model.StartOfDay(e.Date)
	return e
}

func sessionAction(ds *model.DailySession) string {
	if ds.Outcome == nil {
		return ""
	}
	return string(ds.Outcome.Action)
}
