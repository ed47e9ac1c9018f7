package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"companion/internal/calendar"
	"companion/internal/dateutil"
	"companion/internal/ics"
	appLog "companion/internal/log"
	"companion/internal/model"
)

const feedCacheTTL = 30 * time.Second

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("15:04")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// gridFor resolves year/month from the query, falling back to the
// displayed month.
func (s *Server) gridFor(r *http.Request) (calendar.MonthGrid, error) {
	q := r.URL.Query()
	f := calendar.ParseFilter(q.Get("filter"))
	current := s.calendar.Current()
	year := parseIntDefault(q.Get("year"), current.Year)
	month := parseIntDefault(q.Get("month"), current.Month)
	return s.calendar.ViewMonth(r.Context(), year, month, f)
}

// GET /api/calendar?year=&month=&filter=all|events|tasks
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	grid, err := s.gridFor(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// POST /api/calendar/nav?to=prev|next|today, or ?month=&year=
func (s *Server) handleCalendarNav(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var err error
	switch strings.ToLower(q.Get("to")) {
	case "prev", "previous":
		err = s.calendar.Previous(ctx)
	case "next":
		err = s.calendar.Next(ctx)
	case "today":
		err = s.calendar.Today(ctx)
	case "":
		if q.Get("month") == "" || q.Get("year") == "" {
			writeError(w, http.StatusBadRequest, "expected to=prev|next|today or month and year")
			return
		}
		err = s.calendar.GoTo(ctx, parseIntDefault(q.Get("month"), 0), parseIntDefault(q.Get("year"), 0))
	default:
		writeError(w, http.StatusBadRequest, "unknown navigation target")
		return
	}
	if err != nil {
		writeFailure(w, err)
		return
	}

	grid, err := s.calendar.View(ctx, calendar.ParseFilter(q.Get("filter")))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// GET /api/calendar/day?date=YYYY-MM-DD
func (s *Server) handleCalendarDay(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(dateutil.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	detail, err := s.calendar.Day(r.Context(), date)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type pageData struct {
	Grid     calendar.MonthGrid
	User     string
	Rendered time.Time
}

// GET /calendar renders the month server-side. data-ready on <body> tells
// the snapshot capture the page is complete.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	grid, err := s.gridFor(r)
	if err != nil {
		status, body := failure(err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body.Error))
		return
	}

	data := pageData{Grid: grid, Rendered: s.now().In(s.calendar.Location())}
	if s.session != nil {
		if u, ok := s.session.User(); ok {
			data.User = u.Username
		}
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "calendar.tmpl", data); err != nil {
		appLog.Error("calendar page render failed", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// GET /calendar.ics?year=&month=
func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := s.calendar.Current()
	year := parseIntDefault(q.Get("year"), current.Year)
	month := parseIntDefault(q.Get("month"), current.Month)
	key := calendar.Navigator{Month: month, Year: year}.Key()

	now := s.now()
	s.feedMu.RLock()
	cached, ok := s.feedCache[key]
	s.feedMu.RUnlock()
	if ok && now.Sub(cached.updatedAt) < feedCacheTTL {
		writeFeed(w, cached.body)
		return
	}

	mv, err := s.calendar.Month(r.Context(), year, month)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Export(&buf, "Companion "+key, []model.MonthView{mv}, now); err != nil {
		appLog.Error("ics export failed", err, "month", key)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	s.feedMu.Lock()
	s.feedCache[key] = feedEntry{body: buf.Bytes(), updatedAt: now}
	s.feedMu.Unlock()
	writeFeed(w, buf.Bytes())
}

// InvalidateFeeds drops rendered ICS bodies after a write.
func (s *Server) InvalidateFeeds() {
	s.feedMu.Lock()
	clear(s.feedCache)
	s.feedMu.Unlock()
}

func writeFeed(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="companion.ics"`)
	_, _ = w.Write(body)
}
