// Package pipeline orchestrates one scrape run: fetch -> extract ->
// normalize per source, then a single transactional reconciliation pass.
package pipeline

import (
	"github.com/ZaitsWit/re-scraper/listing"
)

// Filters is the business-rule configuration applied by Normalize.
type Filters struct {
	RentLongOnly bool
	ExcludeRooms bool
	MinAreaM2    float64
	MaxPriceRub  int64 // 0 = no maximum
}

// FilterStats records how many candidates each stage removed. The stage
// order is fixed, so the counts are reproducible for audit logs.
type FilterStats struct {
	Input        int `json:"input"`
	NoExternalID int `json:"no_external_id"`
	Duplicates   int `json:"duplicates"`
	DailyRemoved int `json:"daily_removed"`
	RoomsRemoved int `json:"rooms_removed"`
	OutOfBounds  int `json:"out_of_bounds"`
	Kept         int `json:"kept"`
}

type dedupKey struct {
	externalID string
	url        string
}

// Normalize deduplicates and filters extractor output. Pure, no I/O.
// Stage order is fixed: drop unusable records, dedup by (external_id, url)
// with first occurrence winning, rental-period filter, room filter, numeric
// thresholds, then strip the provisional tags. Input order is preserved.
func Normalize(cands []listing.Candidate, f Filters) ([]listing.Candidate, FilterStats) {
	stats := FilterStats{Input: len(cands)}

	seen := make(map[dedupKey]struct{}, len(cands))
	out := make([]listing.Candidate, 0, len(cands))

	for _, c := range cands {
		// No external id means no reconciliation identity; unusable.
		if c.ExternalID == "" {
			stats.NoExternalID++
			continue
		}
		key := dedupKey{externalID: c.ExternalID, url: c.URL}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if f.RentLongOnly && c.Tags != nil && c.Tags.RentPeriod == listing.RentDaily {
			stats.DailyRemoved++
			continue
		}
		if f.ExcludeRooms && c.Tags != nil && c.Tags.IsRoom {
			stats.RoomsRemoved++
			continue
		}

		// An area is always required; the price cap applies only when set.
		areaOK := c.AreaM2 != nil && *c.AreaM2 >= f.MinAreaM2
		priceOK := f.MaxPriceRub <= 0 || (c.PriceRub != nil && *c.PriceRub <= f.MaxPriceRub)
		if !areaOK || !priceOK {
			stats.OutOfBounds++
			continue
		}

		c.Tags = nil
		out = append(out, c)
	}

	stats.Kept = len(out)
	return out, stats
}
