package tasks

import (
	"testing"
	"time"

	"companion/internal/model"
)

func due(t time.Time) *time.Time { return &t }

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		task model.Task
		want model.TaskStatus
	}{
		{"completed far past", model.Task{Completed: true, DueDate: due(now.AddDate(-3, 0, 0))}, model.StatusCompleted},
		{"completed future", model.Task{Completed: true, DueDate: due(now.AddDate(0, 0, 5))}, model.StatusCompleted},
		{"completed no due", model.Task{Completed: true}, model.StatusCompleted},
		{"yesterday", model.Task{DueDate: due(now.AddDate(0, 0, -1))}, model.StatusOverdue},
		{"last week", model.Task{DueDate: due(now.AddDate(0, 0, -7))}, model.StatusOverdue},
		{"later today", model.Task{DueDate: due(now.Add(2 * time.Hour))}, model.StatusToday},
		{"earlier today is overdue", model.Task{DueDate: due(time.Date(2025, 5, 14, 14, 0, 0, 0, time.UTC))}, model.StatusOverdue},
		{"just past midnight today is overdue", model.Task{DueDate: due(time.Date(2025, 5, 14, 0, 1, 0, 0, time.UTC))}, model.StatusOverdue},
		{"due now is today", model.Task{DueDate: due(now)}, model.StatusToday},
		{"tomorrow", model.Task{DueDate: due(time.Date(2025, 5, 15, 9, 0, 0, 0, time.UTC))}, model.StatusTomorrow},
		{"next week", model.Task{DueDate: due(now.AddDate(0, 0, 7))}, model.StatusUpcoming},
		{"no due date", model.Task{}, model.StatusUpcoming},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeriveStatus(c.task, now); got != c.want {
				t.Fatalf("expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestDeriveStatusUsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2025, 5, 14, 8, 0, 0, 0, tokyo)
	// 23:30 UTC on the 14th is the 15th in Tokyo.
	task := model.Task{DueDate: due(time.Date(2025, 5, 14, 23, 30, 0, 0, time.UTC))}
	if got := DeriveStatus(task, now); got != model.StatusTomorrow {
		t.Fatalf("expected tomorrow in Tokyo, got %s", got)
	}
}

func TestWithStatusDoesNotMutateInput(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)
	in := []model.Task{{ID: "a", DueDate: due(now.AddDate(0, 0, -2))}}
	out := WithStatus(in, now)
	if in[0].Status != "" {
		t.Fatalf("expected input untouched")
	}
	if out[0].Status != model.StatusOverdue {
		t.Fatalf("expected overdue, got %s", out[0].Status)
	}
}
