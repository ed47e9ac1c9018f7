package tasks

import (
	"sort"
	"strings"
	"time"

	"companion/internal/model"
)

// Filter narrows a task list. Zero values match everything.
type Filter struct {
	Status    model.TaskStatus `json:"status"`
	Scheduled string           `json:"scheduled"` // YYYY-MM-DD
	Query     string           `json:"query"`
	DueBefore *time.Time       `json:"due_before"`
	DueAfter  *time.Time       `json:"due_after"`
}

// ParseStatus accepts the derived status names; anything else is "".
func ParseStatus(s string) model.TaskStatus {
	switch st := model.TaskStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case model.StatusCompleted, model.StatusOverdue, model.StatusToday, model.StatusTomorrow, model.StatusUpcoming:
		return st
	default:
		return ""
	}
}

// Apply returns the tasks matching f, with Status derived against now.
func Apply(ts []model.Task, f Filter, now time.Time) []model.Task {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]model.Task, 0, len(ts))
	for _, t := range ts {
		t.Status = DeriveStatus(t, now)
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Scheduled != "" && t.ScheduledDate != f.Scheduled {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
			continue
		}
		if f.DueAfter != nil && (t.DueDate == nil || !t.DueDate.After(*f.DueAfter)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Counts tallies tasks per derived status.
func Counts(ts []model.Task, now time.Time) map[model.TaskStatus]int {
	out := make(map[model.TaskStatus]int, 5)
	for _, t := range ts {
		out[DeriveStatus(t, now)]++
	}
	return out
}

// SortByPriority orders high priority first, then earliest due, then title.
func SortByPriority(ts []model.Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Priority != ts[j].Priority {
			return ts[i].Priority > ts[j].Priority
		}
		return dueLess(ts[i], ts[j])
	})
}

// SortByDue orders earliest due first; tasks without a due date go last.
func SortByDue(ts []model.Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		return dueLess(ts[i], ts[j])
	})
}

func dueLess(a, b model.Task) bool {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	case !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	default:
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	}
}
