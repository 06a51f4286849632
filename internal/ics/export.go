package ics

import (
	"strings"
	"time"
	"unicode"

	"evcal/internal/model"
)

// MIMEType is the media type for iCalendar payloads.
const MIMEType = "text/calendar"

// DefaultDurationHours is the assumed length of an event whose listing did
// not specify one. Applied uniformly, export only.
const DefaultDurationHours = 3

const prodID = "-//evcal//Event Calendar//EN"

// Floating local DATE-TIME (no trailing Z). These are walk-in, venue-bound
// events, so the exported wall-clock time must match the venue clock rather
// than shift with the viewer's UTC offset. One policy, all exports.
const dateTimeLayout = "20060102T150405"

// MissingFieldError reports an event that cannot be exported because a
// required field is absent. Fatal for that single export call only.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "export: missing required field: " + e.Field
}

// ExportEvent serializes one event into a single-VEVENT iCalendar document
// plus a download filename. loc is the display timezone (nil means
// time.Local).
//
// The output is deterministic: fixed property order, UID derived from the
// event ID, no wall-clock stamps. Exporting the same event twice yields
// byte-identical content and filename.
func ExportEvent(ev model.Event, loc *time.Location) (model.CalendarFile, error) {
	if strings.TrimSpace(ev.Title) == "" {
		return model.CalendarFile{}, &MissingFieldError{Field: "title"}
	}
	if ev.StartAt.IsZero() {
		return model.CalendarFile{}, &MissingFieldError{Field: "startAt"}
	}
	if loc == nil {
		loc = time.Local
	}

	hours := ev.DurationHours
	if hours <= 0 {
		hours = DefaultDurationHours
	}
	start := ev.StartAt.In(loc)
	end := start.Add(time.Duration(hours) * time.Hour)

	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:"+prodID)
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "METHOD:PUBLISH")
	writeLine(&b, "BEGIN:VEVENT")
	if ev.ID != "" {
		writeLine(&b, "UID:"+escapeText(ev.ID)+"@evcal")
	}
	writeLine(&b, "SUMMARY:"+escapeText(ev.Title))
	writeLine(&b, "DTSTART:"+start.Format(dateTimeLayout))
	writeLine(&b, "DTEND:"+end.Format(dateTimeLayout))
	if ev.Location != "" {
		writeLine(&b, "LOCATION:"+escapeText(ev.Location))
	}
	if ev.Description != "" {
		writeLine(&b, "DESCRIPTION:"+escapeText(ev.Description))
	}
	if ev.Category != "" {
		writeLine(&b, "CATEGORIES:"+escapeText(ev.Category))
	}
	writeLine(&b, "END:VEVENT")
	writeLine(&b, "END:VCALENDAR")

	return model.CalendarFile{
		FileName: ExportFileName(ev.Title),
		MIMEType: MIMEType,
		Content:  []byte(b.String()),
	}, nil
}

// ExportFileName derives the download filename from an event title:
// every run of whitespace becomes a single underscore, plus ".ics".
// Deterministic by construction; no ids or timestamps involved.
func ExportFileName(title string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range title {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte('_')
			inSpace = false
		}
		b.WriteRune(r)
	}
	if inSpace {
		b.WriteByte('_')
	}
	return b.String() + ".ics"
}

// textEscaper applies RFC 5545 TEXT escaping: backslash, semicolon and comma
// are backslash-escaped and embedded newlines become the literal "\n".
// Replacer matches longest-first per position, so the backslash rule cannot
// re-escape its own output.
var textEscaper = strings.NewReplacer(
	"\\", "\\\\",
	";", "\\;",
	",", "\\,",
	"\r\n", "\\n",
	"\r", "\\n",
	"\n", "\\n",
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// unescapeText reverses RFC 5545 TEXT escaping. A dangling backslash is
// kept as-is.
func unescapeText(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ';', ',':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// writeLine emits one content line with CRLF, folding anything longer than
// 75 octets onto space-prefixed continuation lines. Folds back off to rune
// boundaries so multi-byte characters are never split.
func writeLine(b *strings.Builder, line string) {
	limit := 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines carry a leading space inside the 75-octet cap.
		limit = 74
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
