package calendar

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
)

func july4Events() []model.Event {
	return []model.Event{
		{ID: "e1", Title: "A", StartAt: time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC)},
		{ID: "e2", Title: "B", StartAt: time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)},
		{ID: "e3", Title: "C", StartAt: time.Date(2024, 7, 5, 10, 0, 0, 0, time.UTC)},
	}
}

func TestGroupByDay(t *testing.T) {
	t.Parallel()

	agg := GroupByDay(july4Events(), time.UTC)
	require.Zero(t, agg.Skipped)
	require.Len(t, agg.Buckets, 2)

	fourth := agg.Buckets[model.DateKey("2024-07-04")]
	require.NotNil(t, fourth)
	require.Equal(t, 2, fourth.Count)
	// 09:00 sorts before 18:00.
	assert.Equal(t, "e2", fourth.Events[0].ID)
	assert.Equal(t, "e1", fourth.Events[1].ID)
	assert.Equal(t, model.DensityLow, fourth.Density)

	fifth := agg.Buckets[model.DateKey("2024-07-05")]
	require.NotNil(t, fifth)
	require.Equal(t, 1, fifth.Count)
	assert.Equal(t, "e3", fifth.Events[0].ID)
	assert.Equal(t, model.DensityLow, fifth.Density)

	assert.Equal(t,
		[]model.DateKey{"2024-07-04", "2024-07-05"},
		agg.SortedKeys(),
	)
}

func TestGroupByDayEmptyInput(t *testing.T) {
	t.Parallel()

	agg := GroupByDay(nil, time.UTC)
	require.NotNil(t, agg.Buckets)
	assert.Empty(t, agg.Buckets)
	assert.Zero(t, agg.Skipped)
}

func TestGroupByDayDeterministicUnderPermutation(t *testing.T) {
	t.Parallel()

	base := []model.Event{
		{ID: "b", StartAt: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)},
		{ID: "a", StartAt: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)},
		{ID: "d", StartAt: time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)},
		{ID: "c", StartAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)},
		{ID: "e", StartAt: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)},
	}

	want := GroupByDay(base, time.UTC)

	// Equal-timestamp events tie-break on ID.
	ninth := want.Buckets[model.DateKey("2024-03-09")]
	require.NotNil(t, ninth)
	ids := make([]string, 0, len(ninth.Events))
	for _, ev := range ninth.Events {
		ids = append(ids, ev.ID)
	}
	require.Equal(t, []string{"d", "a", "b", "e"}, ids)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.Event, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := GroupByDay(shuffled, time.UTC)
		assert.Equal(t, want.Buckets, got.Buckets)
	}
}

func TestGroupByDaySkipsMalformed(t *testing.T) {
	t.Parallel()

	events := make([]model.Event, 0, 10)
	day := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		events = append(events, model.Event{
			ID:      string(rune('a' + i)),
			StartAt: day.AddDate(0, 0, i),
		})
	}
	// Two records with no usable start time.
	events = append(events,
		model.Event{ID: "bad1"},
		model.Event{ID: "bad2"},
	)

	agg := GroupByDay(events, time.UTC)
	assert.Equal(t, 2, agg.Skipped)
	assert.Len(t, agg.Buckets, 8)
}

func TestGroupByDayLocalDayBoundary(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on July 5 is 22:00 on July 4 in New York; both events
	// belong to the same local day despite different UTC dates.
	events := []model.Event{
		{ID: "early", StartAt: time.Date(2024, 7, 4, 13, 0, 0, 0, time.UTC)},
		{ID: "late", StartAt: time.Date(2024, 7, 5, 2, 0, 0, 0, time.UTC)},
	}

	agg := GroupByDay(events, ny)
	require.Len(t, agg.Buckets, 1)
	bucket := agg.Buckets[model.DateKey("2024-07-04")]
	require.NotNil(t, bucket)
	assert.Equal(t, 2, bucket.Count)
}

func TestDensityMonotonicity(t *testing.T) {
	t.Parallel()

	rank := map[model.DensityClass]int{
		model.DensityNone:   0,
		model.DensityLow:    1,
		model.DensityMedium: 2,
		model.DensityHigh:   3,
	}

	prev := model.DensityFor(0)
	assert.Equal(t, model.DensityNone, prev)
	for count := 1; count <= 20; count++ {
		cur := model.DensityFor(count)
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "count %d", count)
		prev = cur
	}

	assert.Equal(t, model.DensityLow, model.DensityFor(1))
	assert.Equal(t, model.DensityLow, model.DensityFor(2))
	assert.Equal(t, model.DensityMedium, model.DensityFor(3))
	assert.Equal(t, model.DensityMedium, model.DensityFor(5))
	assert.Equal(t, model.DensityHigh, model.DensityFor(6))
}

func TestFilterForView(t *testing.T) {
	t.Parallel()

	b := GridBuilder{Location: time.UTC}
	now := time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)

	cells, err := b.Build(now, now, ViewDay)
	require.NoError(t, err)

	agg := FilterForView(cells, july4Events(), time.UTC)
	require.Len(t, agg.Buckets, 1)
	bucket := agg.Buckets[model.DateKey("2024-07-04")]
	require.NotNil(t, bucket)
	assert.Equal(t, 2, bucket.Count)
}

func TestBucketCategories(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		{ID: "1", StartAt: time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC), Category: "music"},
		{ID: "2", StartAt: time.Date(2024, 7, 4, 10, 0, 0, 0, time.UTC), Category: "food"},
		{ID: "3", StartAt: time.Date(2024, 7, 4, 11, 0, 0, 0, time.UTC), Category: "music"},
		{ID: "4", StartAt: time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)},
	}

	agg := GroupByDay(events, time.UTC)
	bucket := agg.Buckets[model.DateKey("2024-07-04")]
	require.NotNil(t, bucket)
	assert.Equal(t, []string{"music", "food"}, bucket.Categories())
}
