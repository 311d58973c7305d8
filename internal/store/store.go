// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
)

// Repository defines the interface for persisting sessions, creators and
// opportunity records.
type Repository interface {
	// GetSession retrieves a user session. Returns (nil, nil) when the
	// user has no session yet.
	GetSession(ctx context.Context, userID int64) (*domain.UserSession, error)

	// CreateSession creates a session with the given defaults. Idempotent:
	// if the session already exists it is returned unchanged.
	CreateSession(ctx context.Context, userID int64, defaults domain.SessionDefaults) (*domain.UserSession, error)

	// SetSteamToken stores the user's Steam credential token.
	SetSteamToken(ctx context.Context, userID int64, token string) error

	// SetAutoPurchase toggles automatic purchase attempts.
	SetAutoPurchase(ctx context.Context, userID int64, enabled bool) error

	// SetMaxPriceCents updates the price ceiling in currency minor units.
	SetMaxPriceCents(ctx context.Context, userID int64, cents int64) error

	// SetMaxItemAgeDays updates the item freshness window.
	SetMaxItemAgeDays(ctx context.Context, userID int64, days int) error

	// SetTestMode toggles simulated purchases.
	SetTestMode(ctx context.Context, userID int64, enabled bool) error

	// SetMonitoring records whether a monitor loop is running for the user.
	SetMonitoring(ctx context.Context, userID int64, active bool) error

	// IncrementFoundCount bumps the accepted-opportunity counter and
	// returns the new value.
	IncrementFoundCount(ctx context.Context, userID int64) (int, error)

	// ResetProgress zeroes the found counter and clears the user's
	// processed-item set.
	ResetProgress(ctx context.Context, userID int64) error

	// MarkItemProcessed records that the user has evaluated the item.
	// Returns true when the (user, item) pair was not seen before.
	MarkItemProcessed(ctx context.Context, userID, itemID int64) (bool, error)

	// ClearProcessedItems empties the user's processed-item set.
	ClearProcessedItems(ctx context.Context, userID int64) error

	// ProcessedCount returns the size of the user's processed-item set.
	ProcessedCount(ctx context.Context, userID int64) (int, error)

	// UpsertCreator inserts or upgrades a creator record. The first-seen
	// timestamp of an existing record is preserved.
	UpsertCreator(ctx context.Context, rec domain.CreatorRecord) error

	// ListKnownCreatorIDs returns every disqualified creator id.
	ListKnownCreatorIDs(ctx context.Context) ([]int64, error)

	// AppendOpportunity writes one immutable opportunity record.
	AppendOpportunity(ctx context.Context, rec domain.OpportunityRecord) error

	// ListOpportunities returns the user's most recent opportunity
	// records, newest first.
	ListOpportunities(ctx context.Context, userID int64, limit int) ([]domain.OpportunityRecord, error)

	// ResetAllMonitoring clears every monitoring flag and returns how many
	// rows were touched. Used at boot to sweep flags left by a crash.
	ResetAllMonitoring(ctx context.Context) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
