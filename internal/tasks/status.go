package tasks

import (
	"time"

	"companion/internal/dateutil"
	"companion/internal/model"
)

// DeriveStatus buckets a task relative to now.
//
// Order: completed wins; a due timestamp strictly before now is overdue;
// a due date on today's date is today; then tomorrow; everything else,
// including tasks without a due date, is upcoming. Overdue compares full
// timestamps, today and tomorrow compare dates in now's location.
func DeriveStatus(t model.Task, now time.Time) model.TaskStatus {
	if t.Completed {
		return model.StatusCompleted
	}
	if t.DueDate == nil {
		return model.StatusUpcoming
	}
	due := t.DueDate.In(now.Location())
	if due.Before(now) {
		return model.StatusOverdue
	}
	if dateutil.SameDay(now, due) {
		return model.StatusToday
	}
	if dateutil.SameDay(now.AddDate(0, 0, 1), due) {
		return model.StatusTomorrow
	}
	return model.StatusUpcoming
}

// WithStatus returns copies of ts with Status filled in.
func WithStatus(ts []model.Task, now time.Time) []model.Task {
	out := make([]model.Task, len(ts))
	for i, t := range ts {
		t.Status = DeriveStatus(t, now)
		out[i] = t
	}
	return out
}
