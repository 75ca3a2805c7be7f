package pipeline

import (
	"context"
	"time"

	"github.com/ZaitsWit/re-scraper/listing"
	"github.com/ZaitsWit/re-scraper/store"
)

// Outcome is the result of reconciling one candidate.
type Outcome string

const (
	Inserted  Outcome = "inserted"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Reconcile merges one normalized candidate into stored state. New listings
// get an initial snapshot; existing ones get a price update plus snapshot
// only when the observed price differs. All other stored fields are
// immutable once created here.
func Reconcile(ctx context.Context, tx store.Tx, c listing.Candidate) (Outcome, error) {
	existing, err := tx.FindBySourceExternalID(ctx, c.Source, c.ExternalID)
	if err != nil {
		return "", err
	}

	if existing == nil {
		ppm := listing.PricePerM2(c.PriceRub, c.AreaM2)
		id, err := tx.InsertListing(ctx, listing.Listing{
			Source:      c.Source,
			ExternalID:  c.ExternalID,
			Title:       c.Title,
			Address:     c.Address,
			Rooms:       c.Rooms,
			AreaM2:      c.AreaM2,
			Floor:       c.Floor,
			FloorsTotal: c.FloorsTotal,
			PriceRub:    c.PriceRub,
			PricePerM2:  ppm,
			URL:         c.URL,
			Active:      true,
		})
		if err != nil {
			return "", err
		}
		if err := tx.AppendSnapshot(ctx, id, c.PriceRub, ppm, time.Now().UTC()); err != nil {
			return "", err
		}
		return Inserted, nil
	}

	if c.PriceRub == nil || (existing.PriceRub != nil && *existing.PriceRub == *c.PriceRub) {
		return Unchanged, nil
	}

	// Recompute price_per_m2 from the freshest area we have. The fallback
	// to 1 keeps the derived field defined when no area was ever observed.
	area := 1.0
	switch {
	case c.AreaM2 != nil && *c.AreaM2 > 0:
		area = *c.AreaM2
	case existing.AreaM2 != nil && *existing.AreaM2 > 0:
		area = *existing.AreaM2
	}
	ppm := float64(*c.PriceRub) / area

	if err := tx.UpdateListingPrice(ctx, existing.ID, *c.PriceRub, ppm); err != nil {
		return "", err
	}
	if err := tx.AppendSnapshot(ctx, existing.ID, c.PriceRub, &ppm, time.Now().UTC()); err != nil {
		return "", err
	}
	return Updated, nil
}
