package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
)

func TestStoreReplaceAndSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore()

	snap := store.Snapshot()
	assert.Empty(t, snap.Events)
	assert.Zero(t, snap.Version)

	events := []model.Event{
		{ID: "e1", Title: "A", StartAt: time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC)},
	}
	store.Replace(events, 3)

	snap = store.Snapshot()
	assert.Equal(t, events, snap.Events)
	assert.Equal(t, 3, snap.Skipped)
	assert.Equal(t, uint64(1), snap.Version)

	store.Replace(events, 0)
	assert.Equal(t, uint64(2), store.Snapshot().Version)
}

func TestStoreFind(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.Replace([]model.Event{
		{ID: "e1", Title: "A"},
		{ID: "e2", Title: "B"},
	}, 0)

	ev, ok := store.Find("e2")
	require.True(t, ok)
	assert.Equal(t, "B", ev.Title)

	_, ok = store.Find("nope")
	assert.False(t, ok)
}

func TestLoadEventsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.json")
	payload := `[
		{"id": "e1", "title": "Open Mic", "start_at": "2024-07-04T19:00:00Z", "category": "music"},
		{"id": "e2", "title": "Bad Start", "start_at": "next friday"},
		{"id": "", "title": "No ID", "start_at": "2024-07-05T19:00:00Z"},
		{"id": "e4", "title": "Gallery Walk", "start_at": "2024-07-06T12:00:00-04:00", "duration_hours": 2}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	events, skipped, err := loadEventsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "e4", events[1].ID)
	assert.Equal(t, 2, events[1].DurationHours)
}

func TestLoadEventsFileErrors(t *testing.T) {
	t.Parallel()

	_, _, err := loadEventsFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, _, err = loadEventsFile(path)
	require.Error(t, err)
}

func TestLoaderRefreshFromLocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.json")
	payload := `[{"id": "e1", "title": "Open Mic", "start_at": "2024-07-04T19:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	store := NewStore()
	loader := &Loader{EventsFile: path}

	require.NoError(t, loader.Refresh(context.Background(), store))

	snap := store.Snapshot()
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "e1", snap.Events[0].ID)
	assert.Equal(t, uint64(1), snap.Version)
}
