// Package store persists listings and their price snapshots. The pipeline
// only sees the Store/Tx interfaces; Postgres backs production and the
// in-memory implementation backs tests and DSN-less offline runs.
package store

import (
	"context"
	"time"

	"github.com/ZaitsWit/re-scraper/listing"
)

// Store is the read side plus the transaction entry point.
type Store interface {
	// Begin opens the transaction scoping one reconciliation pass.
	Begin(ctx context.Context) (Tx, error)
	// ListRecent returns up to limit listings, most recently updated first.
	ListRecent(ctx context.Context, limit int) ([]listing.Listing, error)
	// ListSnapshots returns a listing's snapshots ordered by ts ascending.
	ListSnapshots(ctx context.Context, listingID int64) ([]listing.PriceSnapshot, error)
	Close()
}

// Tx is the write surface used by the reconciliation engine. All writes of
// one pipeline run share a Tx; Commit makes them visible atomically.
type Tx interface {
	FindBySourceExternalID(ctx context.Context, source, externalID string) (*listing.Listing, error)
	InsertListing(ctx context.Context, l listing.Listing) (int64, error)
	// UpdateListingPrice touches only the price fields and updated_at.
	UpdateListingPrice(ctx context.Context, id int64, priceRub int64, pricePerM2 float64) error
	AppendSnapshot(ctx context.Context, listingID int64, priceRub *int64, pricePerM2 *float64, ts time.Time) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
