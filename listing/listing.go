// Package listing defines the records flowing through the scrape pipeline:
// the ephemeral Candidate produced by extractors, the durable Listing, and
// the immutable PriceSnapshot attached to it.
package listing

import "time"

// RentPeriod classifies the rental cadence of a candidate. It is used only
// by the filter stage and never persisted.
type RentPeriod string

const (
	RentMonthly RentPeriod = "monthly"
	RentDaily   RentPeriod = "daily"
	RentUnknown RentPeriod = "unknown"
)

// Tags carries provisional classification produced by an extractor. The
// normalizer consumes the tags and strips them before handoff; a Candidate
// that reaches the reconciliation engine has Tags == nil.
type Tags struct {
	RentPeriod RentPeriod
	IsRoom     bool
}

// Candidate is one unvalidated listing parsed from a single fetched page.
// Optional numeric fields are pointers; nil means the source page did not
// yield a usable value. Rooms == 0 denotes a studio.
type Candidate struct {
	Source      string
	ExternalID  string
	Title       string
	Address     string
	Rooms       *int
	AreaM2      *float64
	Floor       *int
	FloorsTotal *int
	PriceRub    *int64
	PricePerM2  *float64
	URL         string

	Tags *Tags
}

// Listing is the stored record, identified by (Source, ExternalID).
type Listing struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title,omitempty"`
	Address     string    `json:"address,omitempty"`
	Rooms       *int      `json:"rooms,omitempty"`
	AreaM2      *float64  `json:"area_m2,omitempty"`
	Floor       *int      `json:"floor,omitempty"`
	FloorsTotal *int      `json:"floors_total,omitempty"`
	PriceRub    *int64    `json:"price_rub,omitempty"`
	PricePerM2  *float64  `json:"price_per_m2,omitempty"`
	URL         string    `json:"url,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PriceSnapshot is a point-in-time price observation for one listing.
// Snapshots are append-only; they are removed only by the listing cascade.
type PriceSnapshot struct {
	ID         int64     `json:"id"`
	ListingID  int64     `json:"listing_id"`
	TS         time.Time `json:"ts"`
	PriceRub   *int64    `json:"price_rub,omitempty"`
	PricePerM2 *float64  `json:"price_per_m2,omitempty"`
}

// PricePerM2 derives price per square meter, or nil when either input is
// missing or the area is not positive.
func PricePerM2(priceRub *int64, areaM2 *float64) *float64 {
	if priceRub == nil || areaM2 == nil || *areaM2 <= 0 {
		return nil
	}
	v := float64(*priceRub) / *areaM2
	return &v
}
