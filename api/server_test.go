package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZaitsWit/re-scraper/listing"
	"github.com/ZaitsWit/re-scraper/pipeline"
	"github.com/ZaitsWit/re-scraper/store"
)

type fakeRunner struct {
	queued   bool
	triggers int
}

func (f *fakeRunner) TriggerAsync() bool {
	f.triggers++
	return f.queued
}

func (f *fakeRunner) Status() pipeline.Status {
	return pipeline.Status{IntervalMin: 10, Pending: !f.queued}
}

func seed(t *testing.T, st store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	price := int64(50000)
	area := 40.0
	ppm := 1250.0
	id, err := tx.InsertListing(ctx, listing.Listing{
		Source:     "cian",
		ExternalID: "123",
		Title:      "1-комн. квартира, 40 м²",
		AreaM2:     &area,
		PriceRub:   &price,
		PricePerM2: &ppm,
		URL:        "https://www.cian.ru/rent/flat/123/",
		Active:     true,
	})
	require.NoError(t, err)
	require.NoError(t, tx.AppendSnapshot(ctx, id, &price, &ppm, time.Now()))
	require.NoError(t, tx.Commit(ctx))
	return id
}

func testServer(t *testing.T, st store.Store, runner Triggerer) *httptest.Server {
	t.Helper()
	srv := NewServer(":0", st, runner, zap.NewNop().Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := testServer(t, store.NewMemory(), &fakeRunner{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestTriggerScrape(t *testing.T) {
	runner := &fakeRunner{queued: true}
	ts := testServer(t, store.NewMemory(), runner)

	resp, err := http.Post(ts.URL+"/jobs/scrape", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["queued"])
	assert.Equal(t, 1, runner.triggers)
}

func TestTriggerScrapeCoalesced(t *testing.T) {
	ts := testServer(t, store.NewMemory(), &fakeRunner{queued: false})

	resp, err := http.Post(ts.URL+"/jobs/scrape", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, "a coalesced trigger is still accepted")

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body["queued"])
}

func TestJobsStatus(t *testing.T) {
	ts := testServer(t, store.NewMemory(), &fakeRunner{})

	resp, err := http.Get(ts.URL + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st pipeline.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 10, st.IntervalMin)
	assert.True(t, st.Pending)
}

func TestListListings(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	ts := testServer(t, st, &fakeRunner{})

	resp, err := http.Get(ts.URL + "/listings?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listings []listing.Listing
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listings))
	require.Len(t, listings, 1)
	assert.Equal(t, "123", listings[0].ExternalID)
	require.NotNil(t, listings[0].PriceRub)
	assert.Equal(t, int64(50000), *listings[0].PriceRub)
}

func TestListListingsBadLimit(t *testing.T) {
	ts := testServer(t, store.NewMemory(), &fakeRunner{})

	for _, q := range []string{"limit=0", "limit=-1", "limit=9999", "limit=abc"} {
		resp, err := http.Get(ts.URL + "/listings?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestListingHistory(t *testing.T) {
	st := store.NewMemory()
	id := seed(t, st)
	ts := testServer(t, st, &fakeRunner{})

	resp, err := http.Get(fmt.Sprintf("%s/listings/%d/history", ts.URL, id))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snaps []listing.PriceSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, id, snaps[0].ListingID)
}

func TestListingHistoryEmpty(t *testing.T) {
	ts := testServer(t, store.NewMemory(), &fakeRunner{})

	resp, err := http.Get(ts.URL + "/listings/999/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snaps []listing.PriceSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	assert.Empty(t, snaps)
}
