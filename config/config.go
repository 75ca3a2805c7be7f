// Package config assembles the runtime configuration from environment
// variables (optionally seeded from a .env file) with an optional YAML
// overlay for deployments that prefer a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	// DBDSN enables the Postgres store; empty falls back to the in-memory
	// store (offline mode).
	DBDSN   string `yaml:"db_dsn"`
	APIAddr string `yaml:"api_addr"`
	DevLog  bool   `yaml:"dev_log"`

	ScrapeCity        string `yaml:"scrape_city"`
	ScrapeIntervalMin int    `yaml:"scrape_interval_min"`

	CianRegionID  int      `yaml:"cian_region_id"`
	CianDealType  string   `yaml:"cian_deal_type"` // sale | rent
	CianOfferType string   `yaml:"cian_offer_type"`
	CianRooms     []string `yaml:"cian_rooms"` // studio, 1..4, 5+
	MaxPages      int      `yaml:"max_pages"`
	RateLimitMs   int      `yaml:"rate_limit_ms"`

	AvitoSearchURL   string `yaml:"avito_search_url"`
	AvitoMaxPages    int    `yaml:"avito_max_pages"`
	AvitoRateLimitMs int    `yaml:"avito_rate_limit_ms"`

	MinAreaM2    float64 `yaml:"min_area_m2"`
	MaxPriceRub  int64   `yaml:"max_price_rub"` // 0 = no maximum
	RentLongOnly bool    `yaml:"rent_long_only"`
	ExcludeRooms bool    `yaml:"exclude_rooms"`

	DumpHTML bool   `yaml:"dump_html"`
	DumpDir  string `yaml:"dump_dir"`
}

// Load reads the environment and, when present, merges the YAML overlay
// named by CONFIG_FILE on top of it.
func Load() (*Config, error) {
	cfg := &Config{
		DBDSN:   envString("DB_DSN", ""),
		APIAddr: envString("API_ADDR", ":8000"),
		DevLog:  envBool("DEV_LOG", false),

		ScrapeCity:        envString("SCRAPE_CITY", "sankt-peterburg"),
		ScrapeIntervalMin: envInt("SCRAPE_INTERVAL_MIN", 10),

		CianRegionID:  envInt("CIAN_REGION_ID", 1),
		CianDealType:  envString("CIAN_DEAL_TYPE", "rent"),
		CianOfferType: envString("CIAN_OFFER_TYPE", "flat"),
		CianRooms:     envCSV("CIAN_ROOMS", []string{"studio", "1", "2"}),
		MaxPages:      envInt("MAX_PAGES", 3),
		RateLimitMs:   envInt("RATE_LIMIT_MS", 1200),

		AvitoSearchURL:   envString("AVITO_SEARCH_URL", ""),
		AvitoMaxPages:    envInt("AVITO_MAX_PAGES", 1),
		AvitoRateLimitMs: envInt("AVITO_RATE_LIMIT_MS", 1500),

		MinAreaM2:    envFloat("MIN_AREA_M2", 0),
		MaxPriceRub:  envInt64("MAX_PRICE_RUB", 0),
		RentLongOnly: envBool("RENT_LONG_ONLY", true),
		ExcludeRooms: envBool("EXCLUDE_ROOMS", true),

		DumpHTML: envBool("DUMP_HTML", false),
		DumpDir:  envString("DUMP_DIR", "_debug"),
	}

	path := envString("CONFIG_FILE", "")
	if path == "" {
		// The default overlay is optional; an explicit CONFIG_FILE is not.
		if _, err := os.Stat("configs/app.yaml"); err == nil {
			path = "configs/app.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.AvitoMaxPages < 1 {
		cfg.AvitoMaxPages = 1
	}
	if cfg.ScrapeIntervalMin < 1 {
		cfg.ScrapeIntervalMin = 1
	}

	switch cfg.CianDealType {
	case "sale", "rent":
	default:
		return nil, fmt.Errorf("CIAN_DEAL_TYPE must be sale or rent, got %q", cfg.CianDealType)
	}

	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envCSV(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
