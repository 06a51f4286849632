package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/config"
	"evcal/internal/model"
	"evcal/internal/source"
)

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *source.Store) {
	t.Helper()

	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Timezone = "UTC"
	}
	cfg.Normalize()

	store := source.NewStore()
	store.Replace([]model.Event{
		{ID: "e1", Title: "Sunset Jazz Night", StartAt: time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC), Category: "music"},
		{ID: "e2", Title: "Food Truck Friday", StartAt: time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC), Category: "food"},
		{ID: "e3", Title: "Gallery Walk", StartAt: time.Date(2024, 7, 5, 10, 0, 0, 0, time.UTC)},
		{ID: "broken", Title: ""},
	}, 1)

	ts := httptest.NewServer(NewServer(cfg, store).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleEvents(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body eventsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Events, 4)
	assert.Equal(t, 1, body.Skipped)
	assert.Equal(t, uint64(1), body.Version)
}

func TestHandleCalendarMonth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/calendar?view=month&date=2024-07-01")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body calendarResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2024-07-01", body.ReferenceDate)
	assert.Len(t, body.Cells, 42)
	require.Contains(t, body.Buckets, model.DateKey("2024-07-04"))

	fourth := body.Buckets["2024-07-04"]
	require.Equal(t, 2, fourth.Count)
	// Within-day order: 09:00 before 18:00.
	assert.Equal(t, "e2", fourth.Events[0].ID)
	assert.Equal(t, "e1", fourth.Events[1].ID)
	assert.Equal(t, model.DensityLow, fourth.Density)

	// The zero-start record is reported, not fatal.
	assert.Equal(t, 2, body.Skipped)
}

func TestHandleCalendarList(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/calendar?view=list")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body calendarResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Cells)
	assert.Equal(t, []model.DateKey{"2024-07-04", "2024-07-05"}, body.DayOrder)
}

func TestHandleCalendarBadRequests(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/calendar?view=agenda")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/calendar?view=month&date=July+4th")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleExport(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/export?id=e1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Equal(t,
		`attachment; filename="Sunset_Jazz_Night.ics"`,
		resp.Header.Get("Content-Disposition"),
	)
}

func TestHandleExportErrors(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/export?id=unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Present in the snapshot but not exportable (no title).
	resp, err = http.Get(ts.URL + "/api/export?id=broken")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "venue", Password: "s3cret"}

	ts, _ := newTestServer(t, cfg)

	// /health stays open.
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API requires credentials.
	resp, err = http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("venue", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
