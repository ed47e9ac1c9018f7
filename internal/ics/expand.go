package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "companion/internal/log"
	"companion/internal/model"
)

const defaultMaxOccurrences = 1000

// ExpandOptions bounds recurrence expansion.
type ExpandOptions struct {
	From, To time.Time // occurrences starting in [From, To)
	Location *time.Location
	// MaxPerEntry caps occurrences per recurring entry.
	MaxPerEntry int
}

// Expand turns parsed entries into concrete calendar events starting within
// the window. RRULE, EXDATE and RECURRENCE-ID overrides are applied; an
// override wins over the occurrence it replaces.
func Expand(entries []Entry, opts ExpandOptions) ([]model.Event, error) {
	if !opts.To.After(opts.From) {
		return nil, errors.New("ics: expand window is empty")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxPerEntry <= 0 {
		opts.MaxPerEntry = defaultMaxOccurrences
	}

	overrides := make(map[string][]Entry)
	var bases []Entry
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		bases = append(bases, e)
	}

	var out []model.Event
	for _, base := range bases {
		if base.RRule == "" {
			if inWindow(base.Start, opts) {
				out = append(out, toEvent(base, base.Start, base.End, opts.Location))
			}
			continue
		}
		out = append(out, expandRecurring(base, overrides[base.UID], opts)...)
	}

	// Overrides can move an instance into the window from outside it.
	for _, ovs := range overrides {
		for _, o := range ovs {
			if inWindow(o.Start, opts) && !inWindow(*o.RecurrenceID, opts) {
				out = append(out, toEvent(o, o.Start, o.End, opts.Location))
			}
		}
	}
	return out, nil
}

func expandRecurring(base Entry, overrides []Entry, opts ExpandOptions) []model.Event {
	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		appLog.Warn("ics rrule unparsable, showing first instance only", "uid", base.UID, "err", err)
		if inWindow(base.Start, opts) {
			return []model.Event{toEvent(base, base.Start, base.End, opts.Location)}
		}
		return nil
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(base.Start.Location()))
	}

	loc := base.Start.Location()
	starts := set.Between(opts.From.In(loc), opts.To.In(loc), true)
	if len(starts) > opts.MaxPerEntry {
		appLog.Warn("ics occurrences capped", "uid", base.UID, "cap", opts.MaxPerEntry)
		starts = starts[:opts.MaxPerEntry]
	}

	dur := base.End.Sub(base.Start)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		if !s.Before(opts.To) {
			continue
		}
		if o, ok := overrideFor(overrides, s); ok {
			if inWindow(o.Start, opts) {
				out = append(out, toEvent(o, o.Start, o.End, opts.Location))
			}
			continue
		}
		out = append(out, toEvent(base, s, s.Add(dur), opts.Location))
	}
	return out
}

func overrideFor(overrides []Entry, start time.Time) (Entry, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Entry{}, false
}

func inWindow(t time.Time, opts ExpandOptions) bool {
	return !t.Before(opts.From) && t.Before(opts.To)
}

// toEvent builds the display event. All-day entries keep their calendar
// date in the display zone rather than shifting with the offset.
func toEvent(e Entry, start, end time.Time, loc *time.Location) model.Event {
	if e.AllDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	} else {
		start, end = start.In(loc), end.In(loc)
	}
	return model.Event{
		ID:          e.Subscription.ID + ":" + e.UID + ":" + start.UTC().Format("20060102T150405Z"),
		Title:       e.Summary,
		Description: e.Description,
		StartDate:   start,
		EndDate:     end,
		Location:    e.Location,
		MeetingLink: e.URL,
		Type:        model.EventTypeEvent,
		Source:      e.Subscription.ID,
	}
}
