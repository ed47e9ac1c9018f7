package calendar

import (
	"companion/internal/model"
)

// CellView is a grid cell ready for display: at most MaxItemsPerCell items
// plus an overflow count.
type CellView struct {
	Cell
	Items      []Item `json:"items"`
	Hidden     int    `json:"hidden"`
	Overflow   string `json:"overflow,omitempty"`
	TotalItems int    `json:"totalItems"`
}

// MonthGrid is the full display model of one month.
type MonthGrid struct {
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Key      string     `json:"key"`
	Title    string     `json:"title"`
	Filter   Filter     `json:"filter"`
	Weekdays []string   `json:"weekdays"`
	Cells    []CellView `json:"cells"`
}

// Weeks splits the cells into rows of seven.
func (g MonthGrid) Weeks() [][]CellView {
	rows := make([][]CellView, 0, len(g.Cells)/7)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		rows = append(rows, g.Cells[i:i+7])
	}
	return rows
}

// BuildMonthGrid combines the grid layout with merged, truncated items.
func BuildMonthGrid(mv model.MonthView, f Filter, opts GridOptions) MonthGrid {
	nav := Navigator{Month: mv.Month, Year: mv.Year}
	cells := BuildGrid(mv.Year, mv.Month, mv.DayIndex(), opts)

	g := MonthGrid{
		Year:     mv.Year,
		Month:    mv.Month,
		Key:      nav.Key(),
		Title:    nav.Title(),
		Filter:   f,
		Weekdays: opts.WeekdayHeaders(),
		Cells:    make([]CellView, 0, len(cells)),
	}
	for _, c := range cells {
		all := Merge(c.Data, f)
		visible, hidden := Truncate(all, MaxItemsPerCell)
		g.Cells = append(g.Cells, CellView{
			Cell:       c,
			Items:      visible,
			Hidden:     hidden,
			Overflow:   OverflowLabel(hidden),
			TotalItems: len(all),
		})
	}
	return g
}
