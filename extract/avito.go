package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ZaitsWit/re-scraper/config"
	"github.com/ZaitsWit/re-scraper/fetch"
	"github.com/ZaitsWit/re-scraper/listing"
)

const avitoBaseURL = "https://www.avito.ru"

// Avito prefers the embedded JSON-LD product/offer blocks and falls back to
// DOM card scanning when a page carries none. The search URL is taken
// verbatim from configuration because avito search filters are encoded in
// the path, not in stable query parameters.
type Avito struct {
	searchURL string
	maxPages  int
	rateMs    int
	log       *zap.SugaredLogger
}

var avitoBlockMarkers = []string{
	"подозрительная активность", "вы робот", "captcha", "доступ ограничен",
	"похоже, вы слишком часто", "пожалуйста, подождите",
}

func NewAvito(cfg *config.Config, log *zap.SugaredLogger) *Avito {
	return &Avito{
		searchURL: cfg.AvitoSearchURL,
		maxPages:  cfg.AvitoMaxPages,
		rateMs:    cfg.AvitoRateLimitMs,
		log:       log,
	}
}

func (s *Avito) Name() string     { return "avito" }
func (s *Avito) MaxPages() int    { return s.maxPages }
func (s *Avito) RateLimitMs() int { return s.rateMs }

func (s *Avito) Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:    25 * time.Second,
		Markers:    avitoBlockMarkers,
		MinBodyLen: 3000,
		// Avito serves legitimate short pages and the markers appear in
		// regular footers; treat both heuristics as warnings.
		SoftBlock: true,
		Referer:   avitoBaseURL + "/",
	}
}

func (s *Avito) SearchURL(page int) string {
	if s.searchURL == "" {
		return ""
	}
	if page <= 1 {
		return s.searchURL
	}
	sep := "&"
	if !strings.Contains(s.searchURL, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%sp=%d", s.searchURL, sep, page)
}

func (s *Avito) Extract(body []byte) []listing.Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.Warnw("html parse failed", "source", s.Name(), "err", err)
		return nil
	}
	if out := s.extractJSONLD(doc); len(out) > 0 {
		return out
	}
	return s.extractCards(doc)
}

// extractJSONLD walks every ld+json block looking for Product nodes, either
// top-level, inside @graph, or inside a top-level array.
func (s *Avito) extractJSONLD(doc *goquery.Document) []listing.Candidate {
	var out []listing.Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, node *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(node.Text()), &data); err != nil {
			return
		}
		for _, product := range productNodes(data) {
			for _, offer := range offerNodes(product) {
				c, ok := s.candidateFromOffer(offer)
				if !ok {
					continue
				}
				out = append(out, c)
			}
		}
	})
	return out
}

func productNodes(data any) []map[string]any {
	var out []map[string]any
	collect := func(v any) {
		m, ok := v.(map[string]any)
		if ok && m["@type"] == "Product" {
			out = append(out, m)
		}
	}
	switch v := data.(type) {
	case map[string]any:
		collect(v)
		if graph, ok := v["@graph"].([]any); ok {
			for _, g := range graph {
				collect(g)
			}
		}
	case []any:
		for _, g := range v {
			collect(g)
		}
	}
	return out
}

func offerNodes(product map[string]any) []map[string]any {
	block, ok := product["offers"].(map[string]any)
	if !ok {
		return nil
	}
	offers, ok := block["offers"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		if m, ok := o.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Avito) candidateFromOffer(offer map[string]any) (listing.Candidate, bool) {
	url, _ := offer["url"].(string)
	title, _ := offer["name"].(string)
	if url == "" || title == "" {
		return listing.Candidate{}, false
	}
	priceRub := jsonPrice(offer["price"])

	// All structured fields avito exposes here are packed into the offer
	// name ("2-к. квартира, 45,5 м², 3/9 эт.").
	areaM2 := parseAreaM2(title)
	floor, floorsTotal := parseFloors(title, true)
	rooms := parseRooms(title)

	return listing.Candidate{
		Source:      s.Name(),
		ExternalID:  externalIDFromURL(url, false),
		Title:       title,
		Rooms:       rooms,
		AreaM2:      areaM2,
		Floor:       floor,
		FloorsTotal: floorsTotal,
		PriceRub:    priceRub,
		PricePerM2:  listing.PricePerM2(priceRub, areaM2),
		URL:         url,
		Tags: &listing.Tags{
			// The configured search URL pins the long-rent section, so the
			// period is known without text heuristics.
			RentPeriod: listing.RentMonthly,
			IsRoom:     IsRoomListing(title, title),
		},
	}, true
}

// jsonPrice tolerates both string and numeric JSON-LD price values.
func jsonPrice(v any) *int64 {
	switch p := v.(type) {
	case string:
		return parseInt(p)
	case float64:
		n := int64(p)
		return &n
	default:
		return nil
	}
}

// extractCards is the DOM fallback for pages without usable JSON-LD.
func (s *Avito) extractCards(doc *goquery.Document) []listing.Candidate {
	var out []listing.Candidate
	doc.Find(`div[data-marker="item"]`).Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, `[itemprop="name"]`, `a[data-marker="item-title"]`)

		url := firstAttr(card, "href", `a[data-marker="item-title"]`, `a[itemprop="url"]`)
		if url == "" {
			s.log.Debugw("card without link skipped", "source", s.Name(), "title", title)
			return
		}
		if strings.HasPrefix(url, "/") {
			url = avitoBaseURL + url
		}

		priceText := firstAttr(card, "content", `[itemprop="price"]`)
		if priceText == "" {
			priceText = firstText(card, `[data-marker="item-price"]`)
		}
		priceRub := parseInt(priceText)

		context := collapseSpace(card.Text())
		areaM2 := parseAreaM2(context)
		floor, floorsTotal := parseFloors(context, true)
		rooms := parseRooms(title + " " + context)

		out = append(out, listing.Candidate{
			Source:      s.Name(),
			ExternalID:  externalIDFromURL(url, false),
			Title:       title,
			Rooms:       rooms,
			AreaM2:      areaM2,
			Floor:       floor,
			FloorsTotal: floorsTotal,
			PriceRub:    priceRub,
			PricePerM2:  listing.PricePerM2(priceRub, areaM2),
			URL:         url,
			Tags: &listing.Tags{
				RentPeriod: DetectRentPeriod(priceText + " " + context),
				IsRoom:     IsRoomListing(title, context),
			},
		})
	})
	return out
}
