// Package extract turns fetched marketplace HTML into candidate listings.
// Each marketplace implements Source; the pipeline is source-agnostic, so a
// third marketplace is one new file here plus a constructor call in main.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ZaitsWit/re-scraper/fetch"
	"github.com/ZaitsWit/re-scraper/listing"
)

// Source is one marketplace connector: it knows its search URL scheme, its
// fetch policy (timeouts, block markers), and how to parse its pages.
type Source interface {
	Name() string
	// SearchURL returns the search page URL for a 1-based page number, or ""
	// when the source is not configured for this deployment.
	SearchURL(page int) string
	Policy() fetch.Policy
	// Extract parses one fetched page into candidates. Card-level parse
	// failures are skipped, never fatal to the page.
	Extract(body []byte) []listing.Candidate
	MaxPages() int
	RateLimitMs() int
}

// firstText returns the trimmed text of the first selector that matches a
// non-empty node, in priority order.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstAttr returns the named attribute from the first selector that yields
// a non-empty value.
func firstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
