package domain

import (
	"time"
)

// OpportunityRecord is one append-only audit entry for an accepted
// opportunity, written exactly once regardless of the purchase outcome
// and never mutated afterwards.
type OpportunityRecord struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	ItemID      int64     `json:"item_id"`
	ItemName    string    `json:"item_name"`
	CreatorID   int64     `json:"creator_id"`
	CreatorName string    `json:"creator_name"`
	PriceCents  int64     `json:"price_cents"`
	Attempted   bool      `json:"attempted"`
	Succeeded   bool      `json:"succeeded"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
