package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/monitoring"
	"github.com/sells-group/curator-cli/internal/session"
	"github.com/sells-group/curator-cli/internal/store"
)

var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type stubRunner struct {
	ds  *model.DailySession
	err error
}

func (s stubRunner) Run(context.Context) (*model.DailySession, error) { return s.ds, s.err }

// ctxRunner records the context a session was started with.
type ctxRunner struct {
	ds       *model.DailySession
	err      error
	deadline bool
}

func (r *ctxRunner) Run(ctx context.Context) (*model.DailySession, error) {
	r.err = ctx.Err()
	_, r.deadline = ctx.Deadline()
	return r.ds, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func passSession(t *testing.T, id string, at time.Time) *model.DailySession {
	t.Helper()
	ds := model.NewDailySession(id, at)
	require.NoError(t, ds.Complete(model.PassOutcome{Reasoning: "No candidates available today"}, model.LedgerNotRequired, nil, at))
	return ds
}

func serveReq(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(nil, newTestStore(t), nil, 30)

	rr := serveReq(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_PostSessions(t *testing.T) {
	st := newTestStore(t)

	t.Run("created", func(t *testing.T) {
		h := buildRouter(stubRunner{ds: passSession(t, "s-1", testNow)}, st, nil, 30)
		rr := serveReq(t, h, http.MethodPost, "/sessions")
		assert.Equal(t, http.StatusCreated, rr.Code)

		var ds model.DailySession
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ds))
		assert.Equal(t, "s-1", ds.ID)
		assert.Equal(t, model.ActionPass, ds.Outcome.Action)
	})

	t.Run("conflict while active", func(t *testing.T) {
		h := buildRouter(stubRunner{err: session.ErrSessionActive}, st, nil, 30)
		rr := serveReq(t, h, http.MethodPost, "/sessions")
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), "already running")
	})

	t.Run("no runner", func(t *testing.T) {
		h := buildRouter(nil, st, nil, 30)
		rr := serveReq(t, h, http.MethodPost, "/sessions")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestRouter_PostSessionsOutlivesClient(t *testing.T) {
	runner := &ctxRunner{ds: passSession(t, "s-1", testNow)}
	h := buildRouter(runner, newTestStore(t), nil, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/sessions", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NoError(t, runner.err)
	assert.True(t, runner.deadline)
}

func TestRouter_GetSessions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, passSession(t, "s-1", testNow.AddDate(0, 0, -1))))
	require.NoError(t, st.SaveSession(ctx, passSession(t, "s-2", testNow)))
	h := buildRouter(nil, st, nil, 30)

	rr := serveReq(t, h, http.MethodGet, "/sessions?limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.DailySession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s-2", list[0].ID)

	rr = serveReq(t, h, http.MethodGet, "/sessions?action=acquire")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = serveReq(t, h, http.MethodGet, "/sessions/s-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var one model.DailySession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &one))
	assert.Equal(t, "s-1", one.ID)

	rr = serveReq(t, h, http.MethodGet, "/sessions/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Ledger(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Append(context.Background(), model.LedgerEntry{
		SessionID:   "s-1",
		CandidateID: "c-1",
		Date:        testNow,
		ArtistID:    "zoe ko",
		Category:    "generative",
		Price:       decimal.RequireFromString("3.5"),
		Currency:    "ETH",
	}))
	h := buildRouter(nil, st, nil, 30)

	rr := serveReq(t, h, http.MethodGet, "/ledger?artist=zoe+ko")
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []model.LedgerEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "3.5", entries[0].Price.String())

	rr = serveReq(t, h, http.MethodGet, "/ledger?category=photography")
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestRouter_Status(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveSession(context.Background(), passSession(t, "s-1", time.Now().UTC())))

	h := buildRouter(nil, st, monitoring.NewCollector(st, st, nil), 30)
	rr := serveReq(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Sessions)
	assert.Equal(t, 1, snap.PassStreak)

	rr = serveReq(t, buildRouter(nil, st, nil, 30), http.MethodGet, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestQueryHelpers(t *testing.T) {
	assert.Equal(t, 5, queryInt("5"))
	assert.Equal(t, 0, queryInt("-1"))
	assert.Equal(t, 0, queryInt("x"))

	d, ok := queryDate("2026-10-01")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), d)
	_, ok = queryDate("yesterday")
	assert.False(t, ok)
}
