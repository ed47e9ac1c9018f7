package web

import (
	"context"
	"net/http"
	"time"

	appLog "companion/internal/log"
	"companion/internal/model"
)

// EventStore is the backend's event API.
type EventStore interface {
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, e model.Event) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// POST /api/events
func (s *Server) handleEventCreate(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event writes are not configured")
		return
	}
	var e model.Event
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	e.ID = ""
	saved, err := s.events.CreateEvent(r.Context(), e)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.eventsChanged(r.Context(), saved.StartDate)
	writeJSON(w, http.StatusCreated, saved)
}

// PUT /api/events/{id}
func (s *Server) handleEventUpdate(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event writes are not configured")
		return
	}
	var e model.Event
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	e.ID = r.PathValue("id")
	old, known := s.calendar.CachedEvent(e.ID)
	if known && old.Source != "" {
		writeError(w, http.StatusForbidden, "subscription events are read-only")
		return
	}
	saved, err := s.events.UpdateEvent(r.Context(), e)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.eventsChanged(r.Context(), old.StartDate, saved.StartDate)
	writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/events/{id}
func (s *Server) handleEventDelete(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event writes are not configured")
		return
	}
	id := r.PathValue("id")
	old, known := s.calendar.CachedEvent(id)
	if known && old.Source != "" {
		writeError(w, http.StatusForbidden, "subscription events are read-only")
		return
	}
	if err := s.events.DeleteEvent(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	s.eventsChanged(r.Context(), old.StartDate)
	w.WriteHeader(http.StatusNoContent)
}

// eventsChanged invalidates the months an event write touched. When the
// previous position is unknown the displayed month is reloaded anyway.
// The write already succeeded, so a failed reload is only logged.
func (s *Server) eventsChanged(ctx context.Context, at ...time.Time) {
	touched := false
	for _, t := range at {
		if !t.IsZero() {
			touched = true
		}
	}
	var err error
	if touched {
		err = s.calendar.Mutated(ctx, at...)
	} else {
		err = s.calendar.Refresh(ctx)
	}
	if err != nil {
		appLog.Error("calendar reload after event write failed", err)
	}
	s.InvalidateFeeds()
}
