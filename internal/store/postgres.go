package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/curator-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ledger (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	date         TIMESTAMPTZ NOT NULL UNIQUE,
	artist_id    TEXT NOT NULL,
	category     TEXT NOT NULL,
	price        NUMERIC(38, 18) NOT NULL,
	currency     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	date          TIMESTAMPTZ NOT NULL,
	phase         TEXT NOT NULL,
	action        TEXT,
	ledger_status TEXT,
	data          JSONB NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ledger_artist ON ledger(artist_id, date);
CREATE INDEX IF NOT EXISTS idx_ledger_category ON ledger(category, date);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);

CREATE OR REPLACE RULE ledger_no_update AS ON UPDATE TO ledger DO INSTEAD NOTHING;
CREATE OR REPLACE RULE ledger_no_delete AS ON DELETE TO ledger DO INSTEAD NOTHING;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e model.LedgerEntry) error {
	e = prepareEntry(e)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger (id, session_id, candidate_id, date, artist_id, category, price, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)`,
		e.ID, e.SessionID, e.CandidateID, e.Date, e.ArtistID, e.Category,
		e.Price.String(), e.Currency, e.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append ledger entry for session %s", e.SessionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) CountByArtist(ctx context.Context, artistID string, w model.Window) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger WHERE artist_id = $1 AND date >= $2 AND date <= $3`,
		artistID, w.Since(), w.AsOf,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count by artist %s", artistID)
}

func (s *PostgresStore) SumByCategory(ctx context.Context, category string, w model.Window) (decimal.Decimal, error) {
	return s.sum(ctx,
		`SELECT COALESCE(SUM(price), 0)::text FROM ledger WHERE category = $1 AND date >= $2 AND date <= $3`,
		category, w.Since(), w.AsOf,
	)
}

func (s *PostgresStore) SumSpent(ctx context.Context, w model.Window) (decimal.Decimal, error) {
	return s.sum(ctx,
		`SELECT COALESCE(SUM(price), 0)::text FROM ledger WHERE date >= $1 AND date <= $2`,
		w.Since(), w.AsOf,
	)
}

func (s *PostgresStore) sum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var raw string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, eris.Wrap(err, "postgres: sum prices")
	}
	d, err := decimal.NewFromString(raw)
	return d, eris.Wrapf(err, "postgres: parse sum %q", raw)
}

func (s *PostgresStore) HasEntryOn(ctx context.Context, day time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger WHERE date = $1)`, model.StartOfDay(day),
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has entry on")
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter LedgerFilter) ([]model.LedgerEntry, error) {
	query := `SELECT id, session_id, candidate_id, date, artist_id, category, price::text, currency, created_at
		FROM ledger WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ArtistID != "" {
		query += fmt.Sprintf(` AND artist_id = $%d`, argIdx)
		args = append(args, filter.ArtistID)
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND date >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY date DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var price string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.CandidateID, &e.Date, &e.ArtistID,
			&e.Category, &price, &e.Currency, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse price %q", price)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ledger iterate")
}

func (s *PostgresStore) SaveSession(ctx context.Context, ds *model.DailySession) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, date, phase, action, ledger_status, data, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			action = EXCLUDED.action,
			ledger_status = EXCLUDED.ledger_status,
			data = EXCLUDED.data,
			completed_at = EXCLUDED.completed_at`,
		ds.ID, ds.Date, string(ds.Phase), sessionAction(ds), string(ds.LedgerStatus),
		data, ds.StartedAt, ds.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", ds.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.DailySession, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	var ds model.DailySession
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &ds, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.DailySession, error) {
	query := `SELECT data FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Action != "" {
		query += fmt.Sprintf(` AND action = $%d`, argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.DailySession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		var ds model.DailySession
		if err := json.Unmarshal(data, &ds); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal session")
		}
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}
