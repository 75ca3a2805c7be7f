package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ZaitsWit/re-scraper/config"
	"github.com/ZaitsWit/re-scraper/fetch"
	"github.com/ZaitsWit/re-scraper/listing"
)

// Cian scrapes the server-rendered cat.php search results. There is no
// structured-data block on these pages, so extraction is DOM-based over a
// prioritized list of card container selectors that have been observed in
// the wild at different times.
type Cian struct {
	regionID  int
	dealType  string
	offerType string
	rooms     []string
	maxPages  int
	rateMs    int
	log       *zap.SugaredLogger
}

var cianBlockMarkers = []string{
	"вы робот", "подтвердите, что вы не робот", "captcha",
	"подозрительная активность", "too many requests", "доступ временно ограничен",
}

func NewCian(cfg *config.Config, log *zap.SugaredLogger) *Cian {
	return &Cian{
		regionID:  cfg.CianRegionID,
		dealType:  cfg.CianDealType,
		offerType: cfg.CianOfferType,
		rooms:     cfg.CianRooms,
		maxPages:  cfg.MaxPages,
		rateMs:    cfg.RateLimitMs,
		log:       log,
	}
}

func (s *Cian) Name() string     { return "cian" }
func (s *Cian) MaxPages() int    { return s.maxPages }
func (s *Cian) RateLimitMs() int { return s.rateMs }

func (s *Cian) Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:    20 * time.Second,
		Markers:    cianBlockMarkers,
		MinBodyLen: 5000,
	}
}

// SearchURL builds the old stable SSR endpoint with query parameters, e.g.
// cat.php?deal_type=rent&engine_version=2&offer_type=flat&region=1&p=2&room1=1.
func (s *Cian) SearchURL(page int) string {
	parts := []string{
		"deal_type=" + s.dealType,
		"engine_version=2",
		"offer_type=" + s.offerType,
		"region=" + strconv.Itoa(s.regionID),
		"p=" + strconv.Itoa(page),
	}
	for _, r := range s.rooms {
		switch {
		case r == "studio":
			parts = append(parts, "room0=1")
		case r == "5+":
			parts = append(parts, "room5=1")
		case isDigits(r):
			parts = append(parts, fmt.Sprintf("room%s=1", r))
		}
	}
	return "https://www.cian.ru/cat.php?" + strings.Join(parts, "&")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Card container variants, newest markup first. goquery deduplicates nodes
// matched by more than one alternative.
const cianCardSelector = `[data-cian-id], article[data-name="CardComponent"], ` +
	`div[data-name="CardComponent"], div[data-testid="offer-card"], div[data-mark="Offer"]`

func (s *Cian) Extract(body []byte) []listing.Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.Warnw("html parse failed", "source", s.Name(), "err", err)
		return nil
	}

	var out []listing.Candidate
	doc.Find(cianCardSelector).Each(func(_ int, card *goquery.Selection) {
		c, ok := s.extractCard(card)
		if !ok {
			return
		}
		out = append(out, c)
	})
	return out
}

func (s *Cian) extractCard(card *goquery.Selection) (listing.Candidate, bool) {
	title := firstText(card,
		`[data-mark="OfferTitle"]`,
		`a[data-name*="LinkArea"]`,
		`[data-testid="card-title"]`,
		`a[href*="/sale/"]`,
	)

	url := firstAttr(card, "href",
		`a[href*="/sale/"]`,
		`a[href*="/rent/"]`,
		`a[data-name*="LinkArea"]`,
	)
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	}
	if url == "" {
		// A card without a link is unusable downstream; skip it.
		s.log.Debugw("card without link skipped", "source", s.Name(), "title", title)
		return listing.Candidate{}, false
	}

	address := firstText(card,
		`[data-name="GeoLabel"]`,
		`[data-testid="address"]`,
		`[data-mark="OfferSummary"]`,
	)

	var summaryParts []string
	card.Find(`[data-mark="OfferSummary"]`).Each(func(_ int, n *goquery.Selection) {
		if t := strings.TrimSpace(n.Text()); t != "" {
			summaryParts = append(summaryParts, t)
		}
	})
	summary := strings.Join(summaryParts, " ")
	if summary == "" {
		summary = collapseSpace(card.Text())
	}

	priceText := firstText(card,
		`[data-mark="MainPrice"]`,
		`[data-testid="price"]`,
	)

	priceRub := parseInt(priceText)
	areaM2 := parseAreaM2(summary)
	floor, floorsTotal := parseFloors(summary, false)
	rooms := parseRooms(title + " " + summary)

	// Rent period markers can sit in any of the texts, so classify over all
	// of them at once.
	context := strings.Join([]string{priceText, title, summary, collapseSpace(card.Text())}, " ")

	return listing.Candidate{
		Source:      s.Name(),
		ExternalID:  externalIDFromURL(url, true),
		Title:       title,
		Address:     address,
		Rooms:       rooms,
		AreaM2:      areaM2,
		Floor:       floor,
		FloorsTotal: floorsTotal,
		PriceRub:    priceRub,
		PricePerM2:  listing.PricePerM2(priceRub, areaM2),
		URL:         url,
		Tags: &listing.Tags{
			RentPeriod: DetectRentPeriod(context),
			IsRoom:     IsRoomListing(title, summary),
		},
	}, true
}
