package ics

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// ParseResult carries the events recovered from one feed body plus the
// number of records that had to be dropped. A malformed VEVENT never aborts
// the rest of the feed; it is counted and skipped, mirroring the
// aggregator's skip-and-continue contract.
type ParseResult struct {
	Events  []model.Event
	Skipped int
}

// ParseFeed parses a single ICS payload into normalized events.
//
//   - UID becomes the event ID, SUMMARY the title.
//   - DTSTART is required; DTEND, when present, yields a whole-hour
//     duration (rounded, minimum 1h). Absent DTEND leaves the duration
//     unset so the exporter applies its default.
//   - Text fields are RFC 5545-unescaped.
//   - Recurrence rules are not expanded; a recurring master contributes its
//     base instance only.
func ParseFeed(src Source, body []byte) (ParseResult, error) {
	var out ParseResult

	if len(body) == 0 {
		return out, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("feed parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return out, err
	}

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			// Count and skip this record, but keep parsing the others.
			out.Skipped++
			appLog.Debug("feed vevent skipped", "id", src.ID, "reason", perr.Error())
			continue
		}
		out.Events = append(out.Events, ev)
	}

	appLog.Info("feed parse completed",
		"id", src.ID,
		"url", redactURL(src.URL),
		"event_count", len(out.Events),
		"skipped", out.Skipped,
	)
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = unescapeText(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = unescapeText(p.Value)
	}
	if out.Title == "" {
		return out, errors.New("missing SUMMARY")
	}

	// DTSTART / DTEND via the library's timezone-aware helpers, with a
	// basic-format fallback for feeds the helpers reject.
	start, err := ve.GetStartAt()
	if err != nil || start.IsZero() {
		if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
			start, err = parseICSTime(p.Value)
		}
		if err != nil || start.IsZero() {
			return out, errors.New("missing or unparseable DTSTART")
		}
	}
	out.StartAt = start

	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() && end.After(start) {
		hours := int(math.Round(end.Sub(start).Hours()))
		if hours < 1 {
			hours = 1
		}
		out.DurationHours = hours
	}

	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		// Multiple categories are comma-separated; the first is the badge label.
		cats := strings.SplitN(p.Value, ",", 2)
		out.Category = unescapeText(strings.TrimSpace(cats[0]))
	}

	return out, nil
}

// parseICSTime parses a basic ICS date/date-time string into time.Time.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, time.Local)
	}

	// Date-only (all-day), e.g., 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, time.Local)
}
