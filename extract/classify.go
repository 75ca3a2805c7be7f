package extract

import (
	"regexp"
	"strings"

	"github.com/ZaitsWit/re-scraper/listing"
)

// Keyword heuristics over free text. Both classifiers are prioritized rule
// lists evaluated top-down; the first matching rule wins.

type periodRule struct {
	markers []string
	period  listing.RentPeriod
}

var periodRules = []periodRule{
	{markers: []string{"посуточ", "в сутки", "за сутки", "/сут", "сутки", "в день", "/день", "за день"}, period: listing.RentDaily},
	{markers: []string{"в месяц", "в мес", "/мес", "мес.", "месяц"}, period: listing.RentMonthly},
}

// DetectRentPeriod classifies rental cadence from concatenated card text.
func DetectRentPeriod(text string) listing.RentPeriod {
	low := strings.ToLower(text)
	for _, r := range periodRules {
		for _, m := range r.markers {
			if strings.Contains(low, m) {
				return r.period
			}
		}
	}
	return listing.RentUnknown
}

// Go's \b is ASCII-only, so the standalone-word check for "комната" is
// spelled with explicit Cyrillic boundaries. The [аеы] ending keeps
// "1-комнатная квартира" from matching.
var reRoomWord = regexp.MustCompile(`(?i)(^|[^а-яё])комнат[аеы]($|[^а-яё])`)

type roomRule struct {
	match  func(t string) bool
	isRoom bool
}

var roomRules = []roomRule{
	// An explicit apartment/studio mention wins outright.
	{match: func(t string) bool {
		return strings.Contains(t, "квартира") || strings.Contains(t, "студия")
	}, isRoom: false},
	{match: func(t string) bool {
		return reRoomWord.MatchString(t) && !strings.Contains(t, "комнатн")
	}, isRoom: true},
	{match: func(t string) bool {
		return strings.Contains(t, "комната в") ||
			strings.Contains(t, "комн. в") ||
			strings.Contains(t, "подселени")
	}, isRoom: true},
}

// IsRoomListing reports whether the card advertises a room rather than an
// apartment or studio.
func IsRoomListing(title, context string) bool {
	t := strings.ToLower(title + " " + context)
	for _, r := range roomRules {
		if r.match(t) {
			return r.isRoom
		}
	}
	return false
}
