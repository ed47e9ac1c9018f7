// Package dateutil converts between local date keys ("2006-01-02") and the
// instants the backend speaks in.
//
// Keys are always derived from the date at local noon so that converting to
// another zone cannot move the instant across midnight.
package dateutil

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// Noon returns 12:00 on t's calendar date, in t's location.
func Noon(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

// DateKey formats t's local calendar date.
func DateKey(t time.Time) string {
	return Noon(t).Format(DateLayout)
}

// DateKeyOf builds a key from components; out-of-range days normalize the
// way time.Date does (e.g. day 0 is the last day of the previous month).
func DateKeyOf(year int, month time.Month, day int, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(year, month, day, 12, 0, 0, 0, loc).Format(DateLayout)
}

// ParseDateKey returns noon of key's date in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("dateutil: invalid date key %q: %w", key, err)
	}
	return Noon(t), nil
}

// DayBounds returns the first and last instant of key's date in loc.
func DayBounds(key string, loc *time.Location) (time.Time, time.Time, error) {
	noon, err := ParseDateKey(key, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(noon.Year(), noon.Month(), noon.Day(), 0, 0, 0, 0, noon.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end, nil
}

// DayBoundsISO is DayBounds rendered as RFC 3339 strings with millisecond
// precision, ready for query parameters.
func DayBoundsISO(key string, loc *time.Location) (string, string, error) {
	start, end, err := DayBounds(key, loc)
	if err != nil {
		return "", "", err
	}
	const layout = "2006-01-02T15:04:05.000Z07:00"
	return start.Format(layout), end.Format(layout), nil
}

// MonthKey formats a year/month pair as "YYYY-MM".
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthKeyOf is MonthKey for t's local date.
func MonthKeyOf(t time.Time) string {
	return MonthKey(t.Year(), int(t.Month()))
}

// MonthBounds returns the first instant of the month and the first instant
// of the following month.
func MonthBounds(year, month int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DaysIn returns the number of days in the month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// SameDay reports whether a and b fall on the same calendar date in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
