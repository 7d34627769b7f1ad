package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/curator-cli/internal/model"
)

// ErrNotFound is returned when a session id has no record.
var ErrNotFound = eris.New("store: not found")

// LedgerFilter narrows ListEntries.
type LedgerFilter struct {
	ArtistID string    `json:"artist_id,omitempty"`
	Category string    `json:"category,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Action model.Action `json:"action,omitempty"`
	Since  time.Time    `json:"since,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Ledger is the append-only acquisition history. There is no update or
// delete operation for entries.
type Ledger interface {
	Append(ctx context.Context, entry model.LedgerEntry) error
	CountByArtist(ctx context.Context, artistID string, w model.Window) (int, error)
	SumByCategory(ctx context.Context, category string, w model.Window) (decimal.Decimal, error)
	SumSpent(ctx context.Context, w model.Window) (decimal.Decimal, error)
	HasEntryOn(ctx context.Context, day time.Time) (bool, error)
	ListEntries(ctx context.Context, filter LedgerFilter) ([]model.LedgerEntry, error)
}

// SessionStore keeps the audit record of every completed session.
type SessionStore interface {
	SaveSession(ctx context.Context, s *model.DailySession) error
	GetSession(ctx context.Context, id string) (*model.DailySession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.DailySession, error)
}

// Store is the persistence interface for the curator.
type Store interface {
	Ledger
	SessionStore

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
