// Package domain contains core domain types for the skin bot.
package domain

import (
	"time"
)

// SessionDefaults holds the initial policy values applied when a session
// is created for a user who has never interacted with the bot before.
type SessionDefaults struct {
	MaxOpportunities int
	AutoPurchase     bool
	MaxPriceCents    int64
	MaxItemAgeDays   int
	TestMode         bool
}

// UserSession is the per-user policy and progress record. One row exists
// per chat user; it is created lazily and never deleted. Reset only clears
// the progress fields.
type UserSession struct {
	UserID           int64     `json:"user_id"`
	SteamToken       string    `json:"-"`
	IsMonitoring     bool      `json:"is_monitoring"`
	FoundCount       int       `json:"found_count"`
	MaxOpportunities int       `json:"max_opportunities"`
	AutoPurchase     bool      `json:"auto_purchase"`
	MaxPriceCents    int64     `json:"max_price_cents"`
	MaxItemAgeDays   int       `json:"max_item_age_days"`
	TestMode         bool      `json:"test_mode"`
	CreatedAt        time.Time `json:"created_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

// QuotaReached returns true once the user has accepted as many
// opportunities as their quota allows.
func (s *UserSession) QuotaReached() bool {
	return s.FoundCount >= s.MaxOpportunities
}

// RemainingQuota returns how many more opportunities may be accepted.
func (s *UserSession) RemainingQuota() int {
	remaining := s.MaxOpportunities - s.FoundCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasToken returns true if a Steam credential token is stored.
func (s *UserSession) HasToken() bool {
	return s.SteamToken != ""
}
