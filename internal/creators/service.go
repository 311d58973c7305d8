// Package creators tracks which workshop creators are already confirmed
// to be non-first-time, and decides first-time status for new ones.
package creators

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// Verdict is the outcome of a first-time assessment.
type Verdict int

const (
	// VerdictFirstTime means the creator should be treated as first-time.
	VerdictFirstTime Verdict = iota
	// VerdictKnown means the creator was already disqualified earlier.
	VerdictKnown
	// VerdictDisqualified means this assessment just disqualified the
	// creator (more than one accepted item).
	VerdictDisqualified
)

// String returns the verdict name for logging.
func (v Verdict) String() string {
	switch v {
	case VerdictFirstTime:
		return "first_time"
	case VerdictKnown:
		return "known"
	case VerdictDisqualified:
		return "disqualified"
	default:
		return "unknown"
	}
}

// MarketProber is the slice of the marketplace client the service needs.
type MarketProber interface {
	FetchCreatorProfile(ctx context.Context, creatorID int64) (*market.ProfileSummary, error)
	FetchCreatorItemCount(ctx context.Context, creatorID int64) (int, error)
}

// Service is the process-wide novelty cache: a synchronized set of
// disqualified creator ids mirrored to durable storage. Membership is a
// one-way fact; Disqualify is the only mutation path. All per-user
// monitor loops share one Service.
type Service struct {
	mu     sync.RWMutex
	known  map[int64]struct{}
	repo   store.Repository
	market MarketProber
}

// NewService creates an empty novelty service. Call Load to seed it from
// the store before use.
func NewService(repo store.Repository, prober MarketProber) *Service {
	return &Service{
		known:  make(map[int64]struct{}),
		repo:   repo,
		market: prober,
	}
}

// Load seeds the in-memory set from durable storage.
func (s *Service) Load(ctx context.Context) error {
	ids, err := s.repo.ListKnownCreatorIDs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.known[id] = struct{}{}
	}

	slog.Info("Loaded known creators", "count", len(s.known))
	return nil
}

// IsKnown reports whether the creator was already disqualified.
func (s *Service) IsKnown(creatorID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[creatorID]
	return ok
}

// Size returns how many creators are currently disqualified.
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// Disqualify records the creator as non-first-time. The in-memory set is
// updated even when the durable write fails, so the one-way property
// holds for the life of the process either way.
func (s *Service) Disqualify(ctx context.Context, creatorID int64, name string, itemCount int) error {
	s.mu.Lock()
	s.known[creatorID] = struct{}{}
	s.mu.Unlock()

	err := s.repo.UpsertCreator(ctx, domain.CreatorRecord{
		CreatorID:   creatorID,
		Name:        name,
		FirstSeenAt: time.Now(),
		ItemCount:   itemCount,
	})
	if err != nil {
		slog.Error("Failed to persist creator record", "creator_id", creatorID, "error", err)
		return err
	}
	return nil
}

// Assess decides whether the creator counts as first-time. Remote lookup
// failures fail open toward first-time: a missed opportunity costs more
// than a false positive here. Two loops racing on a brand-new creator may
// both see first-time before either disqualifies; recording is
// at-least-once.
func (s *Service) Assess(ctx context.Context, creatorID int64, name string) Verdict {
	if s.IsKnown(creatorID) {
		return VerdictKnown
	}

	_, err := s.market.FetchCreatorProfile(ctx, creatorID)
	if errors.Is(err, market.ErrNotFound) {
		// New creators may not have an indexed profile yet.
		slog.Info("Creator profile not indexed, treating as first-time",
			"creator_id", creatorID, "creator_name", name)
		return VerdictFirstTime
	}
	if err != nil {
		slog.Warn("Creator profile lookup failed, treating as first-time",
			"creator_id", creatorID, "error", err)
		return VerdictFirstTime
	}

	count, err := s.market.FetchCreatorItemCount(ctx, creatorID)
	if err != nil {
		slog.Warn("Creator item count lookup failed, treating as first-time",
			"creator_id", creatorID, "error", err)
		return VerdictFirstTime
	}

	if count > 1 {
		if err := s.Disqualify(ctx, creatorID, name, count); err != nil {
			slog.Warn("Creator disqualified in memory only", "creator_id", creatorID)
		}
		slog.Info("Creator disqualified", "creator_id", creatorID,
			"creator_name", name, "item_count", count)
		return VerdictDisqualified
	}

	slog.Info("Creator looks first-time", "creator_id", creatorID,
		"creator_name", name, "item_count", count)
	return VerdictFirstTime
}
