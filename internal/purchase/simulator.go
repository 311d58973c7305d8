package purchase

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Simulator synthesizes purchase outcomes without touching the network.
// Used for test-mode sessions so users can watch the bot work before
// trusting it with a real credential.
type Simulator struct {
	rate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator that succeeds with the given
// probability, clamped to [0, 1]. Rate 0 never succeeds and rate 1
// always does.
func NewSimulator(rate float64) *Simulator {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &Simulator{
		rate: rate,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attempt rolls the configured success rate. It never returns an error.
func (s *Simulator) Attempt(ctx context.Context, token, itemName string, priceCents int64) (Result, error) {
	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.rate {
		return Result{
			Attempted:  true,
			Success:    true,
			PriceCents: priceCents,
			Reason:     "simulated order placed",
		}, nil
	}
	return Result{
		Attempted: true,
		Reason:    "simulated order failed",
	}, nil
}
