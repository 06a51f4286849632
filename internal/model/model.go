package model

import (
	"errors"
	"time"
)

// Event is a single listed event as the rest of the engine sees it. The
// ingestion layer (ICS feeds, local JSON listings) normalizes everything
// into this shape; the grid, aggregation and export code only ever read it.
type Event struct {
	// ID is an opaque identifier, unique within any list handed to the
	// aggregator. Feed events use their iCalendar UID.
	ID string `json:"id"`

	Title string `json:"title"`

	// StartAt is the event's start instant. Day bucketing and export both
	// interpret it in the configured display timezone. A zero StartAt marks
	// a malformed record; such events are skipped (and counted) rather than
	// aborting aggregation.
	StartAt time.Time `json:"start_at"`

	// DurationHours is the advertised length of the event. Zero means the
	// listing did not specify one; the exporter substitutes a default.
	DurationHours int `json:"duration_hours,omitempty"`

	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// DateKey identifies one local calendar day in the canonical "YYYY-MM-DD"
// form. It sorts chronologically as a plain string and doubles as a map key
// and a UI key.
type DateKey string

const dateKeyLayout = "2006-01-02"

// NewDateKey derives the key for t's calendar day in loc. A nil loc means
// time.Local.
func NewDateKey(t time.Time, loc *time.Location) DateKey {
	if loc == nil {
		loc = time.Local
	}
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// Time returns midnight of the key's day in loc.
func (k DateKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dateKeyLayout, string(k), loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a = a.In(loc)
	b = b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CalendarCell is one day slot in a rendered view. Cells are rebuilt on
// every grid call and carry no identity beyond their date.
type CalendarCell struct {
	// Date is midnight of the cell's day in the builder's location.
	Date time.Time `json:"date"`

	// InReferenceMonth is false for padding days pulled in from the
	// previous or next month to square off the grid.
	InReferenceMonth bool `json:"in_reference_month"`

	// IsToday is computed against the "now" supplied to the builder, by
	// calendar-date equality in the builder's location.
	IsToday bool `json:"is_today"`
}

// DensityClass is a coarse how-busy-is-this-day bucket used for at-a-glance
// styling of calendar cells.
type DensityClass string

const (
	DensityNone   DensityClass = "none"
	DensityLow    DensityClass = "low"
	DensityMedium DensityClass = "medium"
	DensityHigh   DensityClass = "high"
)

// DensityFor maps an event count to its density class. Thresholds are part
// of the engine's contract: 0 none, 1-2 low, 3-5 medium, 6+ high.
func DensityFor(count int) DensityClass {
	switch {
	case count <= 0:
		return DensityNone
	case count <= 2:
		return DensityLow
	case count <= 5:
		return DensityMedium
	default:
		return DensityHigh
	}
}

// DayBucket summarizes one calendar day's events.
type DayBucket struct {
	Date DateKey `json:"date"`

	// Events is sorted ascending by StartAt, ties broken by ID, so equal
	// inputs always produce identical output regardless of input order.
	Events []Event `json:"events"`

	Count   int          `json:"count"`
	Density DensityClass `json:"density"`
}

// Categories returns the distinct category labels present in the bucket, in
// first-appearance order of the sorted event list. Used for day badges.
func (b *DayBucket) Categories() []string {
	seen := make(map[string]struct{}, len(b.Events))
	out := make([]string, 0, len(b.Events))
	for _, ev := range b.Events {
		if ev.Category == "" {
			continue
		}
		if _, ok := seen[ev.Category]; ok {
			continue
		}
		seen[ev.Category] = struct{}{}
		out = append(out, ev.Category)
	}
	return out
}

// CalendarFile is a rendered single-event calendar document, ready to be
// offered to the user as a download. It is never persisted by the engine.
type CalendarFile struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

// ErrEventNotFound is returned when an export is requested for an ID that is
// not present in the current snapshot.
var ErrEventNotFound = errors.New("event not found")
