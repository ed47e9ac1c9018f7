package calendar

import (
	"errors"
	"fmt"
	"time"

	"companion/internal/dateutil"
)

// ErrInvalidMonth is returned by GoTo for a month outside 1..12.
var ErrInvalidMonth = errors.New("calendar: month must be in 1..12")

// Navigator is the displayed (month, year) pair. Month is always in 1..12.
type Navigator struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewNavigator starts on now's month.
func NewNavigator(now time.Time) Navigator {
	return Navigator{Month: int(now.Month()), Year: now.Year()}
}

// Previous steps back one month, wrapping January to December.
func (n Navigator) Previous() Navigator {
	if n.Month == 1 {
		return Navigator{Month: 12, Year: n.Year - 1}
	}
	return Navigator{Month: n.Month - 1, Year: n.Year}
}

// Next steps forward one month, wrapping December to January.
func (n Navigator) Next() Navigator {
	if n.Month == 12 {
		return Navigator{Month: 1, Year: n.Year + 1}
	}
	return Navigator{Month: n.Month + 1, Year: n.Year}
}

// Today jumps to now's month.
func (n Navigator) Today(now time.Time) Navigator {
	return NewNavigator(now)
}

// GoTo jumps to an explicit month.
func (n Navigator) GoTo(month, year int) (Navigator, error) {
	if month < 1 || month > 12 {
		return n, fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}
	return Navigator{Month: month, Year: year}, nil
}

// Key is the cache key of the displayed month ("YYYY-MM").
func (n Navigator) Key() string {
	return dateutil.MonthKey(n.Year, n.Month)
}

// Title renders e.g. "January 2025".
func (n Navigator) Title() string {
	return time.Month(n.Month).String() + " " + fmt.Sprint(n.Year)
}
