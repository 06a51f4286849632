package calendar

import (
	"errors"
	"fmt"
	"time"

	"evcal/internal/model"
)

// ViewMode selects the presentation granularity a caller is rendering.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek7 ViewMode = "week7"
	ViewDay   ViewMode = "day"
	ViewList  ViewMode = "list"
)

// ErrInvalidViewMode is returned for unrecognized view mode strings. It is
// always surfaced; an unknown mode is never coerced to a default.
var ErrInvalidViewMode = errors.New("invalid view mode")

// ParseViewMode validates a caller-supplied mode string.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewMonth, ViewWeek7, ViewDay, ViewList:
		return ViewMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
}

// RowPolicy controls how many rows a month grid has.
type RowPolicy string

const (
	// RowsFixed42 always produces a 6x7 grid so the layout never jumps
	// between months with different day-of-week alignments.
	RowsFixed42 RowPolicy = "fixed42"

	// RowsMinimal produces just enough whole weeks to cover the month
	// (28, 35 or 42 cells).
	RowsMinimal RowPolicy = "minimal"
)

// ParseRowPolicy maps a config string to a RowPolicy, defaulting to fixed42.
func ParseRowPolicy(s string) RowPolicy {
	if RowPolicy(s) == RowsMinimal {
		return RowsMinimal
	}
	return RowsFixed42
}

// GridBuilder maps (reference date, view mode) to an ordered sequence of
// calendar cells. It holds policy only; every Build call computes fresh cells
// from its arguments, so a single builder is safe for concurrent use.
type GridBuilder struct {
	// Location is the display timezone all day boundaries are computed in.
	// Nil means time.Local. Today detection uses this clock too; using UTC
	// here is exactly the off-by-one-near-midnight bug this field avoids.
	Location *time.Location

	// WeekStart is the weekday grids are aligned to. The zero value is
	// time.Sunday, matching how the calendar is presented.
	WeekStart time.Weekday

	// RowPolicy selects fixed 42-cell or minimal-week month grids.
	// Empty means RowsFixed42.
	RowPolicy RowPolicy
}

// Build returns the cells for one view of the calendar.
//
//   - month: a whole-week-aligned grid around reference's month, including
//     leading/trailing padding days from the adjacent months.
//   - week7: today (taken from now) plus the next 6 consecutive days.
//   - day:   a single cell for today.
//   - list:  no cells; list rendering bypasses the grid and works straight
//     off the aggregator.
//
// now is sampled once by the caller and passed in so that a grid plus an
// aggregation pass over it are self-consistent even across midnight.
func (b GridBuilder) Build(reference, now time.Time, mode ViewMode) ([]model.CalendarCell, error) {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}

	switch mode {
	case ViewMonth:
		return b.buildMonth(reference, now, loc), nil
	case ViewWeek7:
		return b.buildWindow(reference, now, loc, 7), nil
	case ViewDay:
		return b.buildWindow(reference, now, loc, 1), nil
	case ViewList:
		return []model.CalendarCell{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidViewMode, string(mode))
	}
}

func (b GridBuilder) buildMonth(reference, now time.Time, loc *time.Location) []model.CalendarCell {
	ref := reference.In(loc)
	year, month, _ := ref.Date()

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lead := (int(first.Weekday()) - int(b.WeekStart) + 7) % 7
	start := first.AddDate(0, 0, -lead)

	cellCount := 42
	if b.RowPolicy == RowsMinimal {
		// Day 0 of the next month is the last day of this one.
		daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
		cellCount = ((lead + daysInMonth + 6) / 7) * 7
	}

	cells := make([]model.CalendarCell, 0, cellCount)
	for i := 0; i < cellCount; i++ {
		// AddDate keeps midnights aligned across DST transitions, unlike
		// adding 24h increments.
		d := start.AddDate(0, 0, i)
		cells = append(cells, model.CalendarCell{
			Date:             d,
			InReferenceMonth: d.Month() == month && d.Year() == year,
			IsToday:          model.SameDay(d, now, loc),
		})
	}
	return cells
}

// buildWindow produces days consecutive cells starting at today. Padding
// membership is still judged against reference's month so that a window
// sliced out of a month view and one built directly agree on date and
// IsToday values.
func (b GridBuilder) buildWindow(reference, now time.Time, loc *time.Location, days int) []model.CalendarCell {
	ref := reference.In(loc)
	refYear, refMonth, _ := ref.Date()

	n := now.In(loc)
	year, month, day := n.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, loc)

	cells := make([]model.CalendarCell, 0, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, i)
		cells = append(cells, model.CalendarCell{
			Date:             d,
			InReferenceMonth: d.Month() == refMonth && d.Year() == refYear,
			IsToday:          model.SameDay(d, now, loc),
		})
	}
	return cells
}
