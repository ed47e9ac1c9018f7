package web

import (
	"net/http"
	"strings"
	"time"

	"companion/internal/model"
	"companion/internal/tasks"
)

const maxRequestBody = 1 << 20

type tasksResponse struct {
	Tasks  []model.Task             `json:"tasks"`
	Counts map[model.TaskStatus]int `json:"counts"`
}

// GET /api/tasks?status=&scheduled=YYYY-MM-DD&q=&sort=priority|due
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.now().In(s.calendar.Location())
	all := s.tasks.Tasks()

	f := tasks.Filter{
		Status:    tasks.ParseStatus(q.Get("status")),
		Scheduled: strings.TrimSpace(q.Get("scheduled")),
		Query:     q.Get("q"),
	}
	if q.Get("status") != "" && f.Status == "" {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	out := tasks.Apply(all, f, now)
	switch q.Get("sort") {
	case "due":
		tasks.SortByDue(out)
	case "priority":
		tasks.SortByPriority(out)
	}
	if out == nil {
		out = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{Tasks: out, Counts: tasks.Counts(all, now)})
}

// POST /api/tasks/{id}/toggle
func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	saved, err := s.tasks.Toggle(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.InvalidateFeeds()
	saved.Status = tasks.DeriveStatus(saved, s.now().In(s.calendar.Location()))
	writeJSON(w, http.StatusOK, saved)
}

// POST /api/tasks
func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task body")
		return
	}
	t.ID = ""
	saved, err := s.tasks.Create(r.Context(), t)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.InvalidateFeeds()
	saved.Status = tasks.DeriveStatus(saved, s.now().In(s.calendar.Location()))
	writeJSON(w, http.StatusCreated, saved)
}

// PUT /api/tasks/{id}
func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task body")
		return
	}
	t.ID = r.PathValue("id")
	saved, err := s.tasks.Update(r.Context(), t)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.InvalidateFeeds()
	saved.Status = tasks.DeriveStatus(saved, s.now().In(s.calendar.Location()))
	writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/tasks/{id}
func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	s.InvalidateFeeds()
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/scratchpad
func (s *Server) handleScratchpadGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scratch.State())
}

type scratchpadRequest struct {
	Content *string `json:"content"`
}

// PUT /api/scratchpad records an edit; the autosaver saves it once typing
// pauses. ?flush=1 saves immediately.
func (s *Server) handleScratchpadPut(w http.ResponseWriter, r *http.Request) {
	var req scratchpadRequest
	if err := decodeJSON(r, &req); err != nil || req.Content == nil {
		writeError(w, http.StatusBadRequest, "expected {\"content\": \"...\"}")
		return
	}
	s.scratch.Edit(*req.Content)

	if r.URL.Query().Get("flush") != "" {
		if err := s.scratch.Flush(r.Context()); err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.scratch.State())
		return
	}
	writeJSON(w, http.StatusAccepted, s.scratch.State())
}

type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
	ExpiresAt     *time.Time  `json:"expiresAt,omitempty"`
}

// GET /api/session
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	resp := sessionResponse{}
	if s.session != nil && s.session.Authenticated() {
		resp.Authenticated = true
		if u, ok := s.session.User(); ok {
			resp.User = &u
		}
		if exp := s.session.ExpiresAt(); !exp.IsZero() {
			resp.ExpiresAt = &exp
		}
	}
	if !resp.Authenticated {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not signed in", Redirect: loginRoute})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
