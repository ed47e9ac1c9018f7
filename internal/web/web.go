package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"companion/internal/api"
	"companion/internal/calendar"
	"companion/internal/config"
	appLog "companion/internal/log"
	"companion/internal/scratchpad"
	"companion/internal/session"
	"companion/internal/tasks"
)

const loginRoute = "/login"

// Deps are the long-lived objects the handlers read and mutate.
type Deps struct {
	Config   *config.Config
	Calendar *calendar.Controller
	Events   EventStore // optional; event write routes answer 501 without it
	Tasks    *tasks.List
	Scratch  *scratchpad.Autosaver
	Session  *session.Session
	Now      func() time.Time
}

// Server is the local web surface: JSON API, calendar page and ICS feed.
type Server struct {
	cfg      *config.Config
	calendar *calendar.Controller
	events   EventStore
	tasks    *tasks.List
	scratch  *scratchpad.Autosaver
	session  *session.Session
	now      func() time.Time
	mux      *http.ServeMux

	// Short-lived cache of rendered /calendar.ics bodies keyed by month.
	feedMu    sync.RWMutex
	feedCache map[string]feedEntry
}

type feedEntry struct {
	body      []byte
	updatedAt time.Time
}

func NewServer(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		cfg:       d.Config,
		calendar:  d.Calendar,
		events:    d.Events,
		tasks:     d.Tasks,
		scratch:   d.Scratch,
		session:   d.Session,
		now:       d.Now,
		mux:       http.NewServeMux(),
		feedCache: make(map[string]feedEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="Companion", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/session", s.handleSession)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /api/calendar/nav", s.handleCalendarNav)
	s.mux.HandleFunc("GET /api/calendar/day", s.handleCalendarDay)

	s.mux.HandleFunc("POST /api/events", s.handleEventCreate)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleEventUpdate)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleEventDelete)

	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleTaskUpdate)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskDelete)
	s.mux.HandleFunc("POST /api/tasks/{id}/toggle", s.handleTaskToggle)

	s.mux.HandleFunc("GET /api/scratchpad", s.handleScratchpadGet)
	s.mux.HandleFunc("PUT /api/scratchpad", s.handleScratchpadPut)

	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarFeed)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.Snapshot.Path
	if path == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps a domain error onto an HTTP answer. An expired session
// tells the caller where to sign in again.
func writeFailure(w http.ResponseWriter, err error) {
	status, body := failure(err)
	writeJSON(w, status, body)
}

func failure(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		return http.StatusUnauthorized, errorResponse{Error: "session expired", Redirect: loginRoute}
	case errors.Is(err, api.ErrValidation),
		errors.Is(err, calendar.ErrInvalidMonth),
		errors.Is(err, tasks.ErrEmptyTitle):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status >= 500 {
			status = http.StatusBadGateway
		}
		return status, errorResponse{Error: apiErr.Message}
	}
	appLog.Error("request failed", err)
	return http.StatusBadGateway, errorResponse{Error: "backend unavailable"}
}
