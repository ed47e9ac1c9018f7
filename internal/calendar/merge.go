package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"companion/internal/model"
)

// MaxItemsPerCell is how many entries a grid cell shows before collapsing
// the rest into an overflow indicator.
const MaxItemsPerCell = 3

// Filter selects which entity kinds a cell displays.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterEvents Filter = "events"
	FilterTasks  Filter = "tasks"
)

// ParseFilter maps a query value to a Filter; unknown values mean all.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterEvents:
		return FilterEvents
	case FilterTasks:
		return FilterTasks
	default:
		return FilterAll
	}
}

// Color is the visual category tag of an item.
type Color string

const (
	ColorEvent Color = "blue"
	ColorTask  Color = "green"
)

// ColorFor derives the category color from the type discriminator only.
// Priority and completion never change the color.
func ColorFor(t model.EventType) Color {
	if t == model.EventTypeTask {
		return ColorTask
	}
	return ColorEvent
}

// PriorityGlyph returns the icon prefixed to task titles.
func PriorityGlyph(p model.Priority) string {
	switch p {
	case model.PriorityLow:
		return "🔹"
	case model.PriorityMedium:
		return "🔸"
	case model.PriorityHigh:
		return "🔴"
	default:
		return ""
	}
}

// Item is the event-shaped display entry shared by events and tasks.
type Item struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Label     string          `json:"label"`
	Type      model.EventType `json:"type"`
	TaskID    string          `json:"taskId,omitempty"`
	Priority  model.Priority  `json:"priority,omitempty"`
	Completed bool            `json:"completed,omitempty"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Location  string          `json:"location,omitempty"`
	Color     Color           `json:"color"`
	Icon      string          `json:"icon,omitempty"`
	Source    string          `json:"source,omitempty"`
}

// ItemFromEvent maps a backend or overlay event.
func ItemFromEvent(ev model.Event) Item {
	typ := ev.Type
	if typ == "" {
		typ = model.EventTypeEvent
	}
	end := ev.EndDate
	if end.Before(ev.StartDate) {
		end = ev.StartDate
	}
	it := Item{
		ID:       ev.ID,
		Title:    ev.Title,
		Label:    ev.Title,
		Type:     typ,
		TaskID:   ev.TaskID,
		Start:    ev.StartDate,
		End:      end,
		Location: ev.Location,
		Color:    ColorFor(typ),
		Source:   ev.Source,
	}
	return it
}

// ItemFromTask maps a task into the event shape, keeping a back-reference to
// the task and its priority.
func ItemFromTask(t model.Task) Item {
	it := Item{
		ID:        "task-" + t.ID,
		Title:     t.Title,
		Label:     t.Title,
		Type:      model.EventTypeTask,
		TaskID:    t.ID,
		Priority:  t.Priority,
		Completed: t.Completed,
		Color:     ColorFor(model.EventTypeTask),
		Icon:      PriorityGlyph(t.Priority),
	}
	if t.DueDate != nil {
		it.Start = *t.DueDate
		it.End = *t.DueDate
	}
	if it.Icon != "" {
		it.Label = it.Icon + " " + t.Title
	}
	return it
}

// Merge produces the ordered display list for one day under filter f.
// Items are ordered by start time, then title; tasks without a time sort
// after timed entries.
func Merge(day model.CalendarDayView, f Filter) []Item {
	items := make([]Item, 0, len(day.Events)+len(day.Tasks))
	if f != FilterTasks {
		for _, ev := range day.Events {
			items = append(items, ItemFromEvent(ev))
		}
	}
	if f != FilterEvents {
		for _, t := range day.Tasks {
			items = append(items, ItemFromTask(t))
		}
	}
	sortItems(items)
	return items
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Start.IsZero() != b.Start.IsZero() {
			return !a.Start.IsZero()
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
}

// Truncate keeps at most limit items and reports how many were hidden.
func Truncate(items []Item, limit int) ([]Item, int) {
	if limit < 0 {
		limit = 0
	}
	if len(items) <= limit {
		return items, 0
	}
	return items[:limit], len(items) - limit
}

// OverflowLabel renders the "+N others" indicator, or "" when nothing is
// hidden.
func OverflowLabel(hidden int) string {
	if hidden <= 0 {
		return ""
	}
	return fmt.Sprintf("+%d others", hidden)
}

// DayDetail is the unrestricted view of one date, events and tasks kept
// apart rather than merged.
type DayDetail struct {
	Date       string `json:"date"`
	Events     []Item `json:"events"`
	Tasks      []Item `json:"tasks"`
	TotalItems int    `json:"totalItems"`
}

// Detail groups a day view for the detail panel.
func Detail(day model.CalendarDayView) DayDetail {
	d := DayDetail{
		Date:   day.Date,
		Events: make([]Item, 0, len(day.Events)),
		Tasks:  make([]Item, 0, len(day.Tasks)),
	}
	for _, ev := range day.Events {
		d.Events = append(d.Events, ItemFromEvent(ev))
	}
	for _, t := range day.Tasks {
		d.Tasks = append(d.Tasks, ItemFromTask(t))
	}
	sortItems(d.Events)
	sortItems(d.Tasks)
	d.TotalItems = len(d.Events) + len(d.Tasks)
	return d
}
