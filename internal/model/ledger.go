package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one committed acquisition. Entries are append-only.
type LedgerEntry struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	CandidateID string          `json:"candidate_id"`
	Date        time.Time       `json:"date"`
	ArtistID    string          `json:"artist_id"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Window is a trailing period ending at AsOf (inclusive).
type Window struct {
	AsOf time.Time
	Days int
}

// Since returns the start of the window. Entries dated at or after Since
// fall inside it.
func (w Window) Since() time.Time {
	return w.AsOf.AddDate(0, 0, -w.Days)
}

// Contains reports whether t falls in [Since, AsOf].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since()) && !t.After(w.AsOf)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
