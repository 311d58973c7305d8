package domain

import (
	"time"
)

// CreatorRecord marks a workshop creator as confirmed non-first-time.
// Presence of a record is a one-way fact: a creator never re-enters
// first-time status once disqualified. Only ItemCount and Name may be
// upgraded by later lookups; FirstSeenAt is preserved.
type CreatorRecord struct {
	CreatorID   int64     `json:"creator_id"`
	Name        string    `json:"name"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	ItemCount   int       `json:"item_count"`
}
