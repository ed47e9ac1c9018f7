package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"companion/internal/calendar"
	"companion/internal/config"
	"companion/internal/model"
)

type staticMonth struct{ days []model.CalendarDayView }

func (s staticMonth) MonthView(_ context.Context, year, month int) (model.MonthView, error) {
	return model.MonthView{Year: year, Month: month, Days: s.days}, nil
}

func TestPrintMonth(t *testing.T) {
	start := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	a := &app{calendar: calendar.NewController(calendar.ControllerConfig{
		Source: staticMonth{days: []model.CalendarDayView{{
			Date:   "2025-03-12",
			Events: []model.Event{{ID: "e1", Title: "Dentist", StartDate: start, Type: model.EventTypeEvent}},
		}}},
		Grid: calendar.GridOptions{Location: time.UTC},
		Now:  func() time.Time { return time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) },
	})}

	var buf bytes.Buffer
	if err := a.printMonth(context.Background(), &buf); err != nil {
		t.Fatalf("printMonth: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"March 2025", "10*", "12.", "2025-03-12", "[event] Dentist"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestBuildWiresSubscriptions(t *testing.T) {
	conf := config.DefaultConfig()
	conf.SessionPath = t.TempDir() + "/session.yaml"
	conf.CacheDir = t.TempDir()
	conf.Subscriptions = []config.SubscriptionConfig{{URL: "https://example.com/a.ics"}}

	a, err := build(conf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.session.Close()
	if a.overlay == nil {
		t.Fatalf("expected an overlay for configured subscriptions")
	}
	if subs := a.overlay.Subscriptions(); len(subs) != 1 || subs[0].ID != "sub1" {
		t.Fatalf("expected a generated subscription id, got %+v", subs)
	}
	if a.server == nil || a.tasks == nil || a.scratch == nil {
		t.Fatalf("expected every component wired")
	}
}

func TestLoginNeedsPassword(t *testing.T) {
	t.Setenv(envPassword, "")
	conf := config.DefaultConfig()
	conf.SessionPath = ""
	a, err := build(conf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.session.Close()
	if err := a.login(context.Background(), "ada@example.com"); err == nil {
		t.Fatalf("expected error without %s", envPassword)
	}
}
