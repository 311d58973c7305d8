// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
)

// Purchase driver names accepted by PURCHASE_DRIVER.
const (
	DriverOrder   = "order"
	DriverBrowser = "browser"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	DBPath        string
	AdminToken    string

	TelegramBotToken string
	TelegramAPIURL   string

	MarketAPIURL    string
	SteamBaseURL    string
	PollInterval    time.Duration
	FeedPageSize    int
	PurchaseDrv     string
	SimSuccess      float64
	BrowserHeadless bool

	Defaults domain.SessionDefaults
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
		DBPath:        getEnv("DB_PATH", "./data/skinbot.db"),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", ""),

		MarketAPIURL:    getEnv("SCMM_API_URL", ""),
		SteamBaseURL:    getEnv("STEAM_COMMUNITY_URL", ""),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 30*time.Second),
		FeedPageSize:    getEnvInt("FEED_PAGE_SIZE", 50),
		PurchaseDrv:     getEnv("PURCHASE_DRIVER", DriverOrder),
		SimSuccess:      getEnvFloat("SIM_SUCCESS_RATE", 0.7),
		BrowserHeadless: getEnvBool("BROWSER_HEADLESS", true),

		Defaults: domain.SessionDefaults{
			MaxOpportunities: getEnvInt("DEFAULT_MAX_OPPORTUNITIES", 10),
			AutoPurchase:     getEnvBool("DEFAULT_AUTO_PURCHASE", true),
			MaxPriceCents:    int64(getEnvInt("DEFAULT_MAX_PRICE_CENTS", 1000)),
			MaxItemAgeDays:   getEnvInt("DEFAULT_MAX_ITEM_AGE_DAYS", 3),
			TestMode:         getEnvBool("DEFAULT_TEST_MODE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.FeedPageSize < 1 || c.FeedPageSize > 100 {
		return fmt.Errorf("FEED_PAGE_SIZE must be between 1 and 100")
	}
	if c.PurchaseDrv != DriverOrder && c.PurchaseDrv != DriverBrowser {
		return fmt.Errorf("PURCHASE_DRIVER must be %q or %q", DriverOrder, DriverBrowser)
	}
	if c.SimSuccess < 0 || c.SimSuccess > 1 {
		return fmt.Errorf("SIM_SUCCESS_RATE must be between 0 and 1")
	}
	if c.Defaults.MaxOpportunities <= 0 {
		return fmt.Errorf("DEFAULT_MAX_OPPORTUNITIES must be > 0")
	}
	if c.Defaults.MaxPriceCents <= 0 {
		return fmt.Errorf("DEFAULT_MAX_PRICE_CENTS must be > 0")
	}
	if c.Defaults.MaxItemAgeDays <= 0 {
		return fmt.Errorf("DEFAULT_MAX_ITEM_AGE_DAYS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AllowedOrigin == "" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
