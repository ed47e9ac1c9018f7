package tasks

import (
	"testing"
	"time"

	"companion/internal/model"
)

func sampleTasks(now time.Time) []model.Task {
	return []model.Task{
		{ID: "1", Title: "Pay rent", Priority: model.PriorityHigh, DueDate: due(now.AddDate(0, 0, -1))},
		{ID: "2", Title: "Call mom", Priority: model.PriorityLow, DueDate: due(now.Add(time.Hour)), ScheduledDate: "2025-05-14"},
		{ID: "3", Title: "Read book", Priority: model.PriorityMedium, Description: "novel for club"},
		{ID: "4", Title: "Submit report", Priority: model.PriorityHigh, DueDate: due(now.AddDate(0, 0, 1)), Completed: true},
	}
}

func TestApplyFilters(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)
	ts := sampleTasks(now)

	overdue := Apply(ts, Filter{Status: model.StatusOverdue}, now)
	if len(overdue) != 1 || overdue[0].ID != "1" {
		t.Fatalf("unexpected overdue list %+v", overdue)
	}

	planned := Apply(ts, Filter{Scheduled: "2025-05-14"}, now)
	if len(planned) != 1 || planned[0].ID != "2" {
		t.Fatalf("unexpected planned list %+v", planned)
	}

	search := Apply(ts, Filter{Query: "CLUB"}, now)
	if len(search) != 1 || search[0].ID != "3" {
		t.Fatalf("expected description match, got %+v", search)
	}

	before := now.Add(2 * time.Hour)
	dueSoon := Apply(ts, Filter{DueBefore: &before}, now)
	if len(dueSoon) != 2 {
		t.Fatalf("expected 2 tasks due before cutoff, got %d", len(dueSoon))
	}

	all := Apply(ts, Filter{}, now)
	if len(all) != 4 || all[3].Status != model.StatusCompleted {
		t.Fatalf("expected all tasks with derived status, got %+v", all)
	}
}

func TestCounts(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)
	counts := Counts(sampleTasks(now), now)
	if counts[model.StatusOverdue] != 1 || counts[model.StatusToday] != 1 ||
		counts[model.StatusUpcoming] != 1 || counts[model.StatusCompleted] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestSortByPriority(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)
	ts := sampleTasks(now)
	SortByPriority(ts)
	got := []string{ts[0].ID, ts[1].ID, ts[2].ID, ts[3].ID}
	want := []string{"1", "4", "3", "2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestSortByDuePutsUndatedLast(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)
	ts := sampleTasks(now)
	SortByDue(ts)
	if ts[len(ts)-1].ID != "3" {
		t.Fatalf("expected undated task last, got %s", ts[len(ts)-1].ID)
	}
	if ts[0].ID != "1" {
		t.Fatalf("expected earliest due first, got %s", ts[0].ID)
	}
}

func TestParseStatus(t *testing.T) {
	if ParseStatus("Overdue") != model.StatusOverdue {
		t.Fatalf("expected overdue")
	}
	if ParseStatus("late") != "" {
		t.Fatalf("expected empty status for unknown value")
	}
}
