package market

import (
	"time"
)

// Item is the read-only view of one marketplace item as returned by the
// SCMM API. Timestamps stay raw strings because upstream occasionally
// omits or mangles them; BestTimestamp deals with that.
type Item struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CreatorID       int64  `json:"creatorId"`
	CreatorName     string `json:"creatorName"`
	ItemType        string `json:"itemType"`
	ItemCollection  string `json:"itemCollection"`
	IsAccepted      bool   `json:"isAccepted"`
	WorkshopFileID  int64  `json:"workshopFileId"`
	WorkshopFileURL string `json:"workshopFileUrl"`
	TimeAccepted    string `json:"timeAccepted"`
	TimeCreated     string `json:"timeCreated"`
	MarketID        int64  `json:"marketId"`
	SellOrderLowest int64  `json:"marketSellOrderLowestPrice"`
	BuyOrderCount   int    `json:"marketBuyOrderCount"`
	SellOrderCount  int    `json:"marketSellOrderCount"`
}

// BestTimestamp returns the acceptance time when parseable, falling back
// to the creation time. The second return is false when neither parses.
func (it Item) BestTimestamp() (time.Time, bool) {
	for _, raw := range []string{it.TimeAccepted, it.TimeCreated} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// PriceCents returns the lowest current sell price in currency minor
// units, 0 when the item has no market listing yet.
func (it Item) PriceCents() int64 {
	return it.SellOrderLowest
}
