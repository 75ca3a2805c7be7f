package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaitsWit/re-scraper/listing"
	"github.com/ZaitsWit/re-scraper/store"
)

func reconcileOne(t *testing.T, st store.Store, c listing.Candidate) Outcome {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	out, err := Reconcile(ctx, tx, c)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return out
}

func observed(extID string, areaM2 float64, priceRub int64) listing.Candidate {
	c := listing.Candidate{Source: "cian", ExternalID: extID, URL: "https://a/" + extID + "/"}
	if areaM2 > 0 {
		c.AreaM2 = &areaM2
	}
	if priceRub > 0 {
		c.PriceRub = &priceRub
		c.PricePerM2 = listing.PricePerM2(&priceRub, c.AreaM2)
	}
	return c
}

func TestReconcileInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	assert.Equal(t, Inserted, reconcileOne(t, st, observed("123", 40, 50000)))

	listings, err := st.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	l := listings[0]
	assert.Equal(t, "cian", l.Source)
	assert.Equal(t, "123", l.ExternalID)
	assert.True(t, l.Active)
	require.NotNil(t, l.PricePerM2)
	assert.InDelta(t, 1250, *l.PricePerM2, 1e-9)

	snaps, err := st.ListSnapshots(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1, "insert records the initial snapshot")
	require.NotNil(t, snaps[0].PriceRub)
	assert.Equal(t, int64(50000), *snaps[0].PriceRub)

	// Same price again: nothing changes, no snapshot.
	assert.Equal(t, Unchanged, reconcileOne(t, st, observed("123", 40, 50000)))
	snaps, err = st.ListSnapshots(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	// New price: listing updated, second snapshot appended.
	assert.Equal(t, Updated, reconcileOne(t, st, observed("123", 40, 55000)))
	listings, err = st.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listings, 1, "update must not create a second listing")
	require.NotNil(t, listings[0].PriceRub)
	assert.Equal(t, int64(55000), *listings[0].PriceRub)
	require.NotNil(t, listings[0].PricePerM2)
	assert.InDelta(t, 1375, *listings[0].PricePerM2, 1e-9)

	snaps, err = st.ListSnapshots(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.NotNil(t, snaps[1].PriceRub)
	assert.Equal(t, int64(55000), *snaps[1].PriceRub)
}

func TestReconcileMissingPriceIsUnchanged(t *testing.T) {
	st := store.NewMemory()
	require.Equal(t, Inserted, reconcileOne(t, st, observed("9", 40, 50000)))
	assert.Equal(t, Unchanged, reconcileOne(t, st, observed("9", 40, 0)),
		"a candidate without a price never overwrites the stored one")
}

func TestReconcileAreaFallback(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// No area ever observed: the derived field falls back to the raw price.
	require.Equal(t, Inserted, reconcileOne(t, st, observed("7", 0, 50000)))
	require.Equal(t, Updated, reconcileOne(t, st, observed("7", 0, 60000)))

	listings, err := st.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.NotNil(t, listings[0].PricePerM2)
	assert.InDelta(t, 60000, *listings[0].PricePerM2, 1e-9)

	// Stored area is used when the fresh observation lacks one.
	require.Equal(t, Inserted, reconcileOne(t, st, observed("8", 30, 30000)))
	require.Equal(t, Updated, reconcileOne(t, st, observed("8", 0, 45000)))
	listings, err = st.ListRecent(ctx, 10)
	require.NoError(t, err)
	for _, l := range listings {
		if l.ExternalID != "8" {
			continue
		}
		require.NotNil(t, l.PricePerM2)
		assert.InDelta(t, 1500, *l.PricePerM2, 1e-9)
	}
}

func TestReconcileSameIDAcrossSources(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	a := observed("42", 40, 50000)
	b := observed("42", 40, 50000)
	b.Source = "avito"

	require.Equal(t, Inserted, reconcileOne(t, st, a))
	require.Equal(t, Inserted, reconcileOne(t, st, b),
		"identity is (source, external_id), not external_id alone")

	listings, err := st.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}
