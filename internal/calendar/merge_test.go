package calendar

import (
	"fmt"
	"testing"
	"time"

	"companion/internal/model"
)

func eventsAt(n int, day time.Time) []model.Event {
	out := make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		start := day.Add(time.Duration(i) * time.Hour)
		out = append(out, model.Event{
			ID:        fmt.Sprintf("e%d", i),
			Title:     fmt.Sprintf("Event %d", i),
			StartDate: start,
			EndDate:   start.Add(30 * time.Minute),
			Type:      model.EventTypeEvent,
		})
	}
	return out
}

func TestMonthGridTruncatesToThreeItems(t *testing.T) {
	day := time.Date(2025, 4, 8, 8, 0, 0, 0, time.UTC)
	mv := model.MonthView{Year: 2025, Month: 4, Days: []model.CalendarDayView{
		{Date: "2025-04-08", Events: eventsAt(5, day), TotalItems: 5},
		{Date: "2025-04-09", Events: eventsAt(2, day.AddDate(0, 0, 1)), TotalItems: 2},
	}}

	g := BuildMonthGrid(mv, FilterAll, GridOptions{Location: time.UTC})
	cells := map[string]CellView{}
	for _, c := range g.Cells {
		cells[c.Date] = c
	}

	busy := cells["2025-04-08"]
	if len(busy.Items) != 3 {
		t.Fatalf("expected 3 visible items, got %d", len(busy.Items))
	}
	if busy.Overflow != "+2 others" || busy.Hidden != 2 {
		t.Fatalf("expected +2 others, got %q (%d)", busy.Overflow, busy.Hidden)
	}
	if busy.TotalItems != 5 {
		t.Fatalf("expected total 5, got %d", busy.TotalItems)
	}

	quiet := cells["2025-04-09"]
	if len(quiet.Items) != 2 || quiet.Overflow != "" || quiet.Hidden != 0 {
		t.Fatalf("expected 2 items without indicator, got %+v", quiet)
	}
}

func TestMergeMapsTasksIntoEventShape(t *testing.T) {
	due := time.Date(2025, 4, 8, 17, 0, 0, 0, time.UTC)
	day := model.CalendarDayView{
		Date: "2025-04-08",
		Events: []model.Event{{
			ID: "e1", Title: "Standup", StartDate: due.Add(-8 * time.Hour), EndDate: due.Add(-7 * time.Hour), Type: model.EventTypeEvent,
		}},
		Tasks: []model.Task{
			{ID: "t1", Title: "Ship release", Priority: model.PriorityHigh, DueDate: &due},
			{ID: "t2", Title: "Water plants", Priority: model.PriorityLow, DueDate: &due, Completed: true},
		},
	}

	items := Merge(day, FilterAll)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != "e1" || items[0].Color != ColorEvent {
		t.Fatalf("expected the morning event first with event color, got %+v", items[0])
	}
	for _, it := range items[1:] {
		if it.Type != model.EventTypeTask || it.Color != ColorTask {
			t.Fatalf("expected task-typed item with task color, got %+v", it)
		}
		if it.TaskID == "" {
			t.Fatalf("expected back-reference to task")
		}
	}
	if items[1].Label != "🔴 Ship release" {
		t.Fatalf("unexpected label %q", items[1].Label)
	}
	if items[2].Label != "🔹 Water plants" {
		t.Fatalf("unexpected label %q", items[2].Label)
	}
}

func TestMergeColorIgnoresPriorityAndCompletion(t *testing.T) {
	due := time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
	day := model.CalendarDayView{Tasks: []model.Task{
		{ID: "a", Title: "a", Priority: model.PriorityLow, DueDate: &due},
		{ID: "b", Title: "b", Priority: model.PriorityHigh, DueDate: &due, Completed: true},
	}}
	for _, it := range Merge(day, FilterAll) {
		if it.Color != ColorTask {
			t.Fatalf("expected task color for %s, got %s", it.TaskID, it.Color)
		}
	}

	derived := ItemFromEvent(model.Event{ID: "x", Title: "from task", Type: model.EventTypeTask, TaskID: "a"})
	if derived.Color != ColorTask {
		t.Fatalf("expected task-derived event to use task color")
	}
}

func TestMergeFilters(t *testing.T) {
	due := time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
	day := model.CalendarDayView{
		Events: eventsAt(2, due),
		Tasks:  []model.Task{{ID: "t", Title: "t", Priority: model.PriorityMedium, DueDate: &due}},
	}
	if n := len(Merge(day, FilterEvents)); n != 2 {
		t.Fatalf("events filter: expected 2, got %d", n)
	}
	if n := len(Merge(day, FilterTasks)); n != 1 {
		t.Fatalf("tasks filter: expected 1, got %d", n)
	}
	if ParseFilter("TASKS") != FilterTasks || ParseFilter("bogus") != FilterAll {
		t.Fatalf("unexpected ParseFilter results")
	}
}

func TestDetailKeepsGroupsUnrestricted(t *testing.T) {
	due := time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
	day := model.CalendarDayView{
		Date:   "2025-04-08",
		Events: eventsAt(5, due),
		Tasks:  []model.Task{{ID: "t", Title: "t", Priority: model.PriorityMedium, DueDate: &due}},
	}
	d := Detail(day)
	if len(d.Events) != 5 || len(d.Tasks) != 1 || d.TotalItems != 6 {
		t.Fatalf("unexpected detail %+v", d)
	}
}

func TestItemFromInvertedEventDoesNotEndBeforeStart(t *testing.T) {
	start := time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
	it := ItemFromEvent(model.Event{ID: "bad", StartDate: start, EndDate: start.Add(-time.Hour)})
	if it.End.Before(it.Start) {
		t.Fatalf("expected end clamped to start")
	}
	if it.Type != model.EventTypeEvent {
		t.Fatalf("expected default event type, got %q", it.Type)
	}
}

func TestOverflowLabel(t *testing.T) {
	if OverflowLabel(0) != "" {
		t.Fatalf("expected empty label")
	}
	if OverflowLabel(7) != "+7 others" {
		t.Fatalf("unexpected label %q", OverflowLabel(7))
	}
}
