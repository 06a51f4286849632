package source

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// Loader assembles the event snapshot from all configured sources: remote
// ICS feeds plus an optional local JSON listings file.
type Loader struct {
	Fetcher *ics.Fetcher
	Sources []ics.Source

	// EventsFile is an optional local JSON file of venue-managed listings.
	EventsFile string
}

// Load ingests every source and returns the merged event list plus the
// total count of records skipped as malformed. Individual source failures
// are logged and tolerated; Load only errors when nothing at all could be
// ingested and at least one source failed.
func (l *Loader) Load(ctx context.Context) ([]model.Event, int, error) {
	events := make([]model.Event, 0)
	skipped := 0
	failures := 0

	if len(l.Sources) > 0 {
		results, errs := l.Fetcher.FetchAll(ctx, l.Sources)
		failures += len(errs)
		for _, res := range results {
			parsed, err := ics.ParseFeed(res.Source, res.Body)
			if err != nil {
				failures++
				continue
			}
			events = append(events, parsed.Events...)
			skipped += parsed.Skipped
		}
	}

	if l.EventsFile != "" {
		local, localSkipped, err := loadEventsFile(l.EventsFile)
		if err != nil {
			appLog.Error("local listings load failed", err, "path", l.EventsFile)
			failures++
		} else {
			events = append(events, local...)
			skipped += localSkipped
		}
	}

	if len(events) == 0 && failures > 0 {
		return nil, skipped, errors.New("all event sources failed")
	}

	return events, skipped, nil
}

// Refresh runs Load and replaces the store contents on success.
func (l *Loader) Refresh(ctx context.Context, store *Store) error {
	started := time.Now()
	events, skipped, err := l.Load(ctx)
	if err != nil {
		return err
	}
	store.Replace(events, skipped)
	appLog.Info("snapshot refreshed",
		"event_count", len(events),
		"skipped", skipped,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// localEvent is the JSON shape of one record in the listings file. StartAt
// is RFC 3339; records that fail to parse are skipped, not fatal.
type localEvent struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	StartAt       string `json:"start_at"`
	DurationHours int    `json:"duration_hours,omitempty"`
	Location      string `json:"location,omitempty"`
	Category      string `json:"category,omitempty"`
	Description   string `json:"description,omitempty"`
}

func loadEventsFile(path string) ([]model.Event, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var raw []localEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, err
	}

	events := make([]model.Event, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		if r.ID == "" || r.Title == "" {
			skipped++
			continue
		}
		start, err := time.Parse(time.RFC3339, r.StartAt)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, model.Event{
			ID:            r.ID,
			Title:         r.Title,
			StartAt:       start,
			DurationHours: r.DurationHours,
			Location:      r.Location,
			Category:      r.Category,
			Description:   r.Description,
		})
	}

	return events, skipped, nil
}
