package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"companion/internal/model"
	"companion/internal/session"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sess, err := session.New(session.Config{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(sess.Close)
	if err := sess.Set(model.AuthTokens{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("set tokens: %v", err)
	}
	return New(srv.URL+"/", sess, 5*time.Second), sess
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestCarriesBearerAndRequestID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer a1" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("expected uuid request id, got %q", r.Header.Get("X-Request-ID"))
		}
		writeJSON(w, http.StatusOK, []model.Note{{ID: "n1", Title: "First"}})
	})
	c, _ := newTestClient(t, mux)

	notes, err := c.ListNotes(context.Background())
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "First" {
		t.Fatalf("unexpected notes %+v", notes)
	}
}

func TestUnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "r1" {
			t.Errorf("expected refresh token r1, got %q", body["refreshToken"])
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("refresh must not carry a bearer token")
		}
		writeJSON(w, http.StatusOK, model.AuthTokens{AccessToken: "a2", RefreshToken: "r2"})
	})
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
			return
		}
		writeJSON(w, http.StatusOK, []model.Task{{ID: "t1", Title: "Ship"}})
	})
	c, sess := newTestClient(t, mux)

	ts, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(ts) != 1 {
		t.Fatalf("expected retried result, got %+v", ts)
	}
	if refreshes.Load() != 1 || calls.Load() != 2 {
		t.Fatalf("expected 1 refresh and 2 calls, got %d and %d", refreshes.Load(), calls.Load())
	}
	if sess.AccessToken() != "a2" || sess.RefreshToken() != "r2" {
		t.Fatalf("expected rotated tokens on the session")
	}
}

func TestRefreshFailureClearsSessionWithoutRetry(t *testing.T) {
	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
	})
	mux.HandleFunc("GET /links", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, sess := newTestClient(t, mux)
	expired := 0
	sess.OnExpired(func() { expired++ })

	_, err := c.ListLinks(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if refreshes.Load() != 1 || calls.Load() != 1 {
		t.Fatalf("expected exactly 1 refresh and no retry, got %d refreshes, %d calls", refreshes.Load(), calls.Load())
	}
	if sess.Authenticated() || expired != 1 {
		t.Fatalf("expected session cleared and listener notified")
	}

	// No further network traffic once signed out.
	if _, err := c.ListLinks(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if calls.Load() != 1 || refreshes.Load() != 1 {
		t.Fatalf("expected no requests after sign-out")
	}
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, model.AuthTokens{AccessToken: "a2", RefreshToken: "r2"})
	})
	mux.HandleFunc("GET /labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, []model.Label{{ID: "l1", Name: "home"}})
	})
	c, _ := newTestClient(t, mux)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListLabels(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("list labels: %v", err)
		}
	}
	if refreshes.Load() != 1 {
		t.Fatalf("expected a single shared refresh, got %d", refreshes.Load())
	}
}

func TestErrorMessageParsing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": []string{"title too long", "content missing"}})
	})
	mux.HandleFunc("GET /notes/n1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found Here"})
	})
	mux.HandleFunc("DELETE /notes/n1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.CreateNote(ctx, model.Note{Title: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != 400 || apiErr.Message != "title too long; content missing" {
		t.Fatalf("unexpected error %v", err)
	}

	_, err = c.GetNote(ctx, "n1")
	if StatusOf(err) != 404 || !errors.As(err, &apiErr) || apiErr.Message != "Not Found Here" {
		t.Fatalf("expected error field used, got %v", err)
	}

	err = c.DeleteNote(ctx, "n1")
	if !errors.As(err, &apiErr) || apiErr.Message != "Bad Gateway" {
		t.Fatalf("expected status text fallback, got %v", err)
	}
}

func TestValidationHappensBeforeRequest(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	ctx := context.Background()

	checks := []error{
		func() error { _, err := c.CreateNote(ctx, model.Note{Title: "  "}); return err }(),
		func() error { _, err := c.CreateTask(ctx, model.Task{}); return err }(),
		func() error { _, err := c.CreateTask(ctx, model.Task{Title: "x", Priority: 7}); return err }(),
		func() error { _, err := c.CreateLink(ctx, model.Link{URL: "notaurl"}); return err }(),
		func() error { _, err := c.CreateEvent(ctx, model.Event{Title: "x"}); return err }(),
		func() error { _, err := c.Login(ctx, "", "pw"); return err }(),
		func() error { _, err := c.Weather(ctx, " "); return err }(),
		func() error { _, err := c.MonthView(ctx, 2025, 13); return err }(),
		c.DeleteTask(ctx, ""),
	}
	for i, err := range checks {
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("check %d: expected ErrValidation, got %v", i, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestLoginStoresTokensAndUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ada@example.com" || body["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, model.AuthTokens{
			AccessToken: "fresh", RefreshToken: "rr",
			User: &model.User{ID: "u1", Email: "ada@example.com"},
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c, sess := newTestClient(t, mux)
	sess.Clear()
	ctx := context.Background()

	if _, err := c.Login(ctx, "ada@example.com", "bad"); StatusOf(err) != 401 {
		t.Fatalf("expected 401 for bad credentials, got %v", err)
	}
	if sess.Authenticated() {
		t.Fatalf("expected no session after failed login")
	}

	u, err := c.Login(ctx, " ada@example.com ", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != "u1" || sess.AccessToken() != "fresh" {
		t.Fatalf("expected session populated, got user %+v token %q", u, sess.AccessToken())
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sess.Authenticated() {
		t.Fatalf("expected session cleared after logout")
	}
}

func TestMonthViewAndToggle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendar/month/2025/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.MonthView{Days: []model.CalendarDayView{{Date: "2025-03-04", TotalItems: 1}}})
	})
	mux.HandleFunc("PATCH /tasks/t1/toggle", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Task{ID: "t1", Completed: true})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	mv, err := c.MonthView(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("month view: %v", err)
	}
	if mv.Year != 2025 || mv.Month != 3 || len(mv.Days) != 1 {
		t.Fatalf("unexpected month view %+v", mv)
	}

	task, err := c.ToggleTask(ctx, "t1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !task.Completed {
		t.Fatalf("expected completed task")
	}
}

func TestLoadAllIsIndependentPerPart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Note{{ID: "n"}})
	})
	mux.HandleFunc("GET /links", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	})
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Task{{ID: "t"}})
	})
	mux.HandleFunc("GET /notebooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Notebook{{ID: "b"}})
	})
	mux.HandleFunc("GET /labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Label{{ID: "l"}})
	})
	mux.HandleFunc("GET /bloc-note", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.BlocNote{Content: "hello"})
	})
	c, _ := newTestClient(t, mux)

	got, err := c.LoadAll(context.Background())
	if err == nil || StatusOf(err) != 500 {
		t.Fatalf("expected the links failure reported, got %v", err)
	}
	if len(got.Errs) != 1 || got.Errs["links"] == nil {
		t.Fatalf("expected only links to fail, got %v", got.Errs)
	}
	if len(got.Notes) != 1 || len(got.Tasks) != 1 || len(got.Notebooks) != 1 ||
		len(got.Labels) != 1 || got.BlocNote.Content != "hello" {
		t.Fatalf("expected other parts loaded, got %+v", got)
	}
}
