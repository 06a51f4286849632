package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"evcal/internal/calendar"
	"evcal/internal/config"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/source"
)

// Server exposes the calendar engine over HTTP: the current event snapshot,
// grid-plus-bucket calendar views, and single-event ICS downloads.
type Server struct {
	cfg   *config.Config
	store *source.Store
	grid  calendar.GridBuilder
	loc   *time.Location
	mux   *http.ServeMux

	// Calendar responses are cached per (snapshot version, view, date,
	// today). Version changes on every refresh, so stale entries age out
	// naturally; today is part of the key so midnight invalidates IsToday.
	calMu    sync.RWMutex
	calCache map[string]calendarResponse
}

// NewServer constructs a Server around the given store.
func NewServer(cfg *config.Config, store *source.Store) *Server {
	loc := resolveLocationOrLocal(cfg.Timezone)

	weekStart := time.Sunday
	if cfg.WeekStart == "monday" {
		weekStart = time.Monday
	}

	s := &Server{
		cfg:   cfg,
		store: store,
		grid: calendar.GridBuilder{
			Location:  loc,
			WeekStart: weekStart,
			RowPolicy: calendar.ParseRowPolicy(cfg.GridRows),
		},
		loc:      loc,
		mux:      http.NewServeMux(),
		calCache: make(map[string]calendarResponse),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// StartServer starts an HTTP server bound to cfg.Listen and blocks until
// ctx is canceled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, store *source.Store) error {
	s := NewServer(cfg, store)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/export", s.handleExport)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="evcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events   []model.Event `json:"events"`
	Skipped  int           `json:"skipped"`
	Version  uint64        `json:"version"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// handleEvents returns the raw current snapshot.
//
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	events := snap.Events
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:   events,
		Skipped:  snap.Skipped,
		Version:  snap.Version,
		LoadedAt: snap.LoadedAt,
	})
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	View          calendar.ViewMode                  `json:"view"`
	ReferenceDate string                             `json:"reference_date"`
	Cells         []model.CalendarCell               `json:"cells"`
	Buckets       map[model.DateKey]*model.DayBucket `json:"buckets"`
	DayOrder      []model.DateKey                    `json:"day_order"`
	Skipped       int                                `json:"skipped"`
	Version       uint64                             `json:"version"`
}

// handleCalendar returns the cells and per-day buckets for one view.
//
// GET /api/calendar?view=month|week7|day|list&date=YYYY-MM-DD
//   - view: required presentation mode
//   - date: reference date; defaults to today
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := calendar.ParseViewMode(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Sample "now" once; the grid and the aggregation below must agree on
	// what day it is even if this request spans midnight.
	now := time.Now().In(s.loc)

	reference := now
	if d := q.Get("date"); d != "" {
		reference, err = time.ParseInLocation("2006-01-02", d, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date: want YYYY-MM-DD")
			return
		}
	}

	snap := s.store.Snapshot()
	refKey := string(model.NewDateKey(reference, s.loc))
	versionPrefix := strconv.FormatUint(snap.Version, 10) + "|"
	cacheKey := versionPrefix + string(mode) + "|" + refKey + "|" + string(model.NewDateKey(now, s.loc))

	s.calMu.RLock()
	cached, ok := s.calCache[cacheKey]
	s.calMu.RUnlock()
	if ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	cells, err := s.grid.Build(reference, now, mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var agg calendar.Aggregation
	if mode == calendar.ViewList {
		agg = calendar.GroupByDay(snap.Events, s.loc)
	} else {
		agg = calendar.FilterForView(cells, snap.Events, s.loc)
	}

	resp := calendarResponse{
		View:          mode,
		ReferenceDate: refKey,
		Cells:         cells,
		Buckets:       agg.Buckets,
		DayOrder:      agg.SortedKeys(),
		Skipped:       agg.Skipped + snap.Skipped,
		Version:       snap.Version,
	}

	s.calMu.Lock()
	// Drop entries for older snapshot versions; they can never be
	// requested again.
	for key := range s.calCache {
		if !strings.HasPrefix(key, versionPrefix) {
			delete(s.calCache, key)
		}
	}
	s.calCache[cacheKey] = resp
	s.calMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleExport serves one event as a downloadable ICS file.
//
// GET /api/export?id=<event id>
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ev, ok := s.store.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrEventNotFound.Error())
		return
	}

	file, err := ics.ExportEvent(ev, s.loc)
	if err != nil {
		var mf *ics.MissingFieldError
		if errors.As(err, &mf) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		appLog.Error("export failed", err, "event_id", id)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", file.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
