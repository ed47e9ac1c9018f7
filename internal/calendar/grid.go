package calendar

import (
	"time"

	"companion/internal/dateutil"
	"companion/internal/model"
)

// GridCells is the fixed size of a month grid: six weeks of seven days.
// Months that fit in five weeks still get six rows so the layout does not
// jump when navigating.
const GridCells = 42

// GridOptions controls how a month grid is laid out.
type GridOptions struct {
	// SundayFirst switches the first column from Monday to Sunday.
	SundayFirst bool

	// Location is used to decide which date is "today". Nil means time.Local.
	Location *time.Location

	// Today overrides the current instant, mostly for tests.
	Today time.Time
}

// Cell is one day of the month grid.
type Cell struct {
	Date           string       `json:"date"`
	Day            int          `json:"day"`
	Weekday        time.Weekday `json:"weekday"`
	IsCurrentMonth bool         `json:"isCurrentMonth"`
	IsToday        bool         `json:"isToday"`

	// Data is the backend day view for this date, if any.
	Data model.CalendarDayView `json:"-"`
}

// BuildGrid lays out the 42 cells covering year/month. Leading cells come
// from the previous month, trailing cells from the next one. days is keyed by
// "YYYY-MM-DD" and may be nil.
func BuildGrid(year, month int, days map[string]model.CalendarDayView, opts GridOptions) []Cell {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	weekStart := opts.weekStart()

	today := opts.Today
	if today.IsZero() {
		today = time.Now()
	}
	todayKey := dateutil.DateKey(today.In(loc))

	// All arithmetic happens at noon so DST shifts never change the date.
	first := time.Date(year, time.Month(month), 1, 12, 0, 0, 0, loc)
	leading := LeadingDays(first.Weekday(), weekStart)

	cells := make([]Cell, 0, GridCells)
	for i := 0; i < GridCells; i++ {
		d := first.AddDate(0, 0, i-leading)
		key := d.Format(dateutil.DateLayout)
		cell := Cell{
			Date:           key,
			Day:            d.Day(),
			Weekday:        d.Weekday(),
			IsCurrentMonth: d.Month() == first.Month() && d.Year() == first.Year(),
			IsToday:        key == todayKey,
		}
		if dv, ok := days[key]; ok {
			cell.Data = dv
		} else {
			cell.Data = model.CalendarDayView{Date: key}
		}
		cells = append(cells, cell)
	}
	return cells
}

// LeadingDays returns how many cells of the previous month precede the 1st
// when the week starts on weekStart. With a Monday start a Sunday 1st needs
// six leading days.
func LeadingDays(firstWeekday, weekStart time.Weekday) int {
	return (int(firstWeekday) - int(weekStart) + 7) % 7
}

// WeekdayHeaders returns short weekday names in column order.
func (o GridOptions) WeekdayHeaders() []string {
	start := o.weekStart()
	out := make([]string, 7)
	for i := 0; i < 7; i++ {
		out[i] = time.Weekday((int(start) + i) % 7).String()[:3]
	}
	return out
}

func (o GridOptions) weekStart() time.Weekday {
	if o.SundayFirst {
		return time.Sunday
	}
	return time.Monday
}
