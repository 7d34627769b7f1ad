package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/monitoring"
	"github.com/sells-group/curator-cli/internal/session"
	"github.com/sells-group/curator-cli/internal/store"
)

var servePort int

// sessionRunTimeout bounds a session started over HTTP. The run is detached
// from the request so a client disconnect does not cancel the day's session.
const sessionRunTimeout = 15 * time.Minute

// sessionRunner is the part of *session.Runner the HTTP layer needs.
type sessionRunner interface {
	Run(ctx context.Context) (*model.DailySession, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for triggering and inspecting sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCurator(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Store, env.Breakers)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		router := buildRouter(env.Runner, env.Store, collector, cfg.Monitoring.LookbackDays)
		return startServer(ctx, resolvePort(servePort, cfg.Server.Port), router)
	},
}

func resolvePort(flagPort, configPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return configPort
}

func startServer(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter wires the HTTP routes. runner and collector may be nil, in
// which case their routes answer 503.
func buildRouter(runner sessionRunner, st store.Store, collector *monitoring.Collector, lookbackDays int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", func(w http.ResponseWriter, req *http.Request) {
		if runner == nil {
			writeError(w, http.StatusServiceUnavailable, "session runner not configured")
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), sessionRunTimeout)
		defer cancel()
		ds, err := runner.Run(ctx)
		if errors.Is(err, session.ErrSessionActive) {
			writeError(w, http.StatusConflict, "a session is already running")
			return
		}
		if err != nil {
			zap.L().Error("serve: session run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "session run failed")
			return
		}
		writeJSON(w, http.StatusCreated, ds)
	})

	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.SessionFilter{
			Action: model.Action(q.Get("action")),
			Limit:  queryInt(q.Get("limit")),
			Offset: queryInt(q.Get("offset")),
		}
		if since, ok := queryDate(q.Get("since")); ok {
			filter.Since = since
		}
		sessions, err := st.ListSessions(req.Context(), filter)
		if err != nil {
			zap.L().Error("serve: list sessions failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list sessions failed")
			return
		}
		if sessions == nil {
			sessions = []model.DailySession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		ds, err := st.GetSession(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			zap.L().Error("serve: get session failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get session failed")
			return
		}
		writeJSON(w, http.StatusOK, ds)
	})

	r.Get("/ledger", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.LedgerFilter{
			ArtistID: q.Get("artist"),
			Category: q.Get("category"),
			Limit:    queryInt(q.Get("limit")),
		}
		if since, ok := queryDate(q.Get("since")); ok {
			filter.Since = since
		}
		entries, err := st.ListEntries(req.Context(), filter)
		if err != nil {
			zap.L().Error("serve: list ledger failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list ledger failed")
			return
		}
		if entries == nil {
			entries = []model.LedgerEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		if collector == nil {
			writeError(w, http.StatusServiceUnavailable, "monitoring not configured")
			return
		}
		snap, err := collector.Collect(req.Context(), lookbackDays)
		if err != nil {
			zap.L().Error("serve: collect status failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect status failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// queryDate parses a YYYY-MM-DD query value as a UTC day.
func queryDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
