// Package purchase holds the purchase drivers: the real Steam buy-order
// call, a browser-automation fallback, and the test-mode simulator.
package purchase

import (
	"context"
	"time"
)

// rustAppID is the Steam application id purchases are scoped to.
const rustAppID = 252490

// attemptTimeout bounds one whole purchase attempt.
const attemptTimeout = 15 * time.Second

// Result is the outcome of one purchase attempt. Attempted is false when
// the attempt was skipped by policy before any driver ran.
type Result struct {
	Attempted  bool   `json:"attempted"`
	Success    bool   `json:"success"`
	PriceCents int64  `json:"price_cents,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Purchaser is a single blocking purchase action. Implementations report
// marketplace-level rejection through Result and transport-level failure
// through the error.
type Purchaser interface {
	Attempt(ctx context.Context, token, itemName string, priceCents int64) (Result, error)
}
