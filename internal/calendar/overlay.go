package calendar

import (
	"sort"
	"time"

	"companion/internal/dateutil"
	"companion/internal/model"
)

// MergeOverlay adds read-only subscription events to the month's day views.
// Events are bucketed by the local date of their start; events starting
// outside the month are ignored. The input view is not modified.
func MergeOverlay(mv model.MonthView, events []model.Event, loc *time.Location) model.MonthView {
	if len(events) == 0 {
		return mv
	}
	if loc == nil {
		loc = time.Local
	}

	byDate := make(map[string]*model.CalendarDayView, len(mv.Days))
	out := model.MonthView{Year: mv.Year, Month: mv.Month}
	days := make([]model.CalendarDayView, len(mv.Days))
	for i, d := range mv.Days {
		d.Events = append([]model.Event(nil), d.Events...)
		days[i] = d
	}

	prefix := dateutil.MonthKey(mv.Year, mv.Month)
	for i := range days {
		byDate[days[i].Date] = &days[i]
	}

	for _, ev := range events {
		key := dateutil.DateKey(ev.StartDate.In(loc))
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		d, ok := byDate[key]
		if !ok {
			days = append(days, model.CalendarDayView{Date: key})
			// Re-point the index, append may have moved the backing array.
			for i := range days {
				byDate[days[i].Date] = &days[i]
			}
			d = byDate[key]
		}
		d.Events = append(d.Events, ev)
	}

	for i := range days {
		days[i].TotalItems = len(days[i].Events) + len(days[i].Tasks)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	out.Days = days
	return out
}
