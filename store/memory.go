package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ZaitsWit/re-scraper/listing"
)

// Memory is an in-process store used by tests and by DSN-less offline runs.
// A transaction holds the store lock for its whole lifetime, which also
// serializes reconciliation passes the way a single DB transaction would.
type Memory struct {
	mu             sync.Mutex
	listings       map[int64]listing.Listing
	snapshots      map[int64][]listing.PriceSnapshot
	nextListingID  int64
	nextSnapshotID int64
}

func NewMemory() *Memory {
	return &Memory{
		listings:  make(map[int64]listing.Listing),
		snapshots: make(map[int64][]listing.PriceSnapshot),
	}
}

func (m *Memory) Close() {}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	return &memTx{m: m, updates: make(map[int64][2]float64)}, nil
}

func (m *Memory) ListRecent(ctx context.Context, limit int) ([]listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]listing.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListSnapshots(ctx context.Context, listingID int64) ([]listing.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[listingID]
	out := make([]listing.PriceSnapshot, len(snaps))
	copy(out, snaps)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TS.Equal(out[j].TS) {
			return out[i].ID < out[j].ID
		}
		return out[i].TS.Before(out[j].TS)
	})
	return out, nil
}

// memTx stages writes and applies them on Commit while still holding the
// store lock; Rollback discards the staged state.
type memTx struct {
	m        *Memory
	inserted []listing.Listing
	updates  map[int64][2]float64 // id -> {price, price_per_m2}
	snaps    []listing.PriceSnapshot
	done     bool
}

func (t *memTx) FindBySourceExternalID(ctx context.Context, source, externalID string) (*listing.Listing, error) {
	for i := range t.inserted {
		if t.inserted[i].Source == source && t.inserted[i].ExternalID == externalID {
			l := t.inserted[i]
			return &l, nil
		}
	}
	var found *listing.Listing
	for _, l := range t.m.listings {
		if l.Source == source && l.ExternalID == externalID {
			if found == nil || l.ID < found.ID {
				cp := l
				found = &cp
			}
		}
	}
	return found, nil
}

func (t *memTx) InsertListing(ctx context.Context, l listing.Listing) (int64, error) {
	t.m.nextListingID++
	l.ID = t.m.nextListingID
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	t.inserted = append(t.inserted, l)
	return l.ID, nil
}

func (t *memTx) UpdateListingPrice(ctx context.Context, id int64, priceRub int64, pricePerM2 float64) error {
	for i := range t.inserted {
		if t.inserted[i].ID == id {
			p := priceRub
			ppm := pricePerM2
			t.inserted[i].PriceRub = &p
			t.inserted[i].PricePerM2 = &ppm
			t.inserted[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	t.updates[id] = [2]float64{float64(priceRub), pricePerM2}
	return nil
}

func (t *memTx) AppendSnapshot(ctx context.Context, listingID int64, priceRub *int64, pricePerM2 *float64, ts time.Time) error {
	t.m.nextSnapshotID++
	snap := listing.PriceSnapshot{
		ID:        t.m.nextSnapshotID,
		ListingID: listingID,
		TS:        ts.UTC(),
	}
	if priceRub != nil {
		p := *priceRub
		snap.PriceRub = &p
	}
	if pricePerM2 != nil {
		ppm := *pricePerM2
		snap.PricePerM2 = &ppm
	}
	t.snaps = append(t.snaps, snap)
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.m.mu.Unlock()

	for _, l := range t.inserted {
		t.m.listings[l.ID] = l
	}
	for id, pv := range t.updates {
		l, ok := t.m.listings[id]
		if !ok {
			continue
		}
		price := int64(pv[0])
		ppm := pv[1]
		l.PriceRub = &price
		l.PricePerM2 = &ppm
		l.UpdatedAt = time.Now().UTC()
		t.m.listings[id] = l
	}
	for _, s := range t.snaps {
		t.m.snapshots[s.ListingID] = append(t.m.snapshots[s.ListingID], s)
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.m.mu.Unlock()
	return nil
}
