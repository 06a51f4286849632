package calendar

import (
	"sort"
	"time"

	"evcal/internal/model"
)

// Aggregation is the result of bucketing a flat event list by calendar day.
// It is recomputed from scratch on every call and never cached here; callers
// that want caching key it by (event list version, view mode, reference date).
type Aggregation struct {
	Buckets map[model.DateKey]*model.DayBucket

	// Skipped counts records that could not be bucketed (zero/invalid
	// start). A handful of bad records must not take down the whole view,
	// so they are dropped and reported instead of raised.
	Skipped int
}

// GroupByDay buckets events by their local calendar day in loc (nil means
// time.Local). Within a bucket events are sorted ascending by start time
// with ties broken by ID, so any permutation of the same input produces the
// same output. An empty input yields an empty, non-nil mapping.
func GroupByDay(events []model.Event, loc *time.Location) Aggregation {
	if loc == nil {
		loc = time.Local
	}

	agg := Aggregation{Buckets: make(map[model.DateKey]*model.DayBucket)}

	for _, ev := range events {
		if ev.StartAt.IsZero() {
			agg.Skipped++
			continue
		}
		key := model.NewDateKey(ev.StartAt, loc)
		b := agg.Buckets[key]
		if b == nil {
			b = &model.DayBucket{Date: key}
			agg.Buckets[key] = b
		}
		b.Events = append(b.Events, ev)
	}

	for _, b := range agg.Buckets {
		sortBucket(b)
		b.Count = len(b.Events)
		b.Density = model.DensityFor(b.Count)
	}

	return agg
}

// FilterForView restricts GroupByDay's result to the days present in cells.
// Used for month/week7/day views; list view callers use GroupByDay directly
// over the full event list and order days with SortedKeys.
func FilterForView(cells []model.CalendarCell, events []model.Event, loc *time.Location) Aggregation {
	if loc == nil {
		loc = time.Local
	}

	wanted := make(map[model.DateKey]struct{}, len(cells))
	for _, c := range cells {
		wanted[model.NewDateKey(c.Date, loc)] = struct{}{}
	}

	agg := GroupByDay(events, loc)
	for key := range agg.Buckets {
		if _, ok := wanted[key]; !ok {
			delete(agg.Buckets, key)
		}
	}
	return agg
}

// SortedKeys returns the bucket keys ascending by date. DateKeys are
// YYYY-MM-DD strings, so plain string order is chronological order.
func (a Aggregation) SortedKeys() []model.DateKey {
	keys := make([]model.DateKey, 0, len(a.Buckets))
	for key := range a.Buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortBucket(b *model.DayBucket) {
	sort.Slice(b.Events, func(i, j int) bool {
		ei, ej := b.Events[i], b.Events[j]
		if !ei.StartAt.Equal(ej.StartAt) {
			return ei.StartAt.Before(ej.StartAt)
		}
		return ei.ID < ej.ID
	})
}
