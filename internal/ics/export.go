package ics

import (
	"io"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"companion/internal/model"
)

const productID = "-//companion//calendar export//EN"

// Export writes a month's backend events as VEVENTs and its due tasks as
// VTODOs. Task-derived events are skipped in favour of their task, and
// subscription events are not republished.
func Export(w io.Writer, name string, months []model.MonthView, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	events := map[string]model.Event{}
	tasks := map[string]model.Task{}
	for _, mv := range months {
		for _, day := range mv.Days {
			for _, ev := range day.Events {
				if ev.Source != "" || ev.Type == model.EventTypeTask {
					continue
				}
				events[ev.ID] = ev
			}
			for _, t := range day.Tasks {
				tasks[t.ID] = t
			}
		}
	}

	for _, id := range sortedKeys(events) {
		ev := events[id]
		ve := cal.AddEvent(id)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		ve.SetStartAt(ev.StartDate)
		end := ev.EndDate
		if end.Before(ev.StartDate) {
			end = ev.StartDate
		}
		ve.SetEndAt(end)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.MeetingLink != "" {
			ve.SetURL(ev.MeetingLink)
		}
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt)
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt)
		}
	}

	for _, id := range sortedKeys(tasks) {
		t := tasks[id]
		todo := cal.AddTodo(id)
		todo.SetDtStampTime(stamp)
		todo.SetSummary(t.Title)
		if t.Description != "" {
			todo.SetDescription(t.Description)
		}
		if t.DueDate != nil {
			todo.SetProperty(ical.ComponentProperty("DUE"), t.DueDate.UTC().Format("20060102T150405Z"))
		}
		todo.SetProperty(ical.ComponentProperty("PRIORITY"), icalPriority(t.Priority))
		status := "NEEDS-ACTION"
		if t.Completed {
			status = "COMPLETED"
		}
		todo.SetProperty(ical.ComponentProperty("STATUS"), status)
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// icalPriority maps 1..3 onto RFC 5545's 9 (low) .. 1 (high).
func icalPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "1"
	case model.PriorityLow:
		return "9"
	default:
		return "5"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
