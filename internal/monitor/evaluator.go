// Package monitor runs the per-user polling loops and the evaluation
// pipeline that turns marketplace feed items into opportunities.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/HybieGee/Rust-Skin-Bot/internal/creators"
	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	"github.com/HybieGee/Rust-Skin-Bot/internal/events"
	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/notify"
	"github.com/HybieGee/Rust-Skin-Bot/internal/purchase"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// Assessor decides first-time status for a creator.
type Assessor interface {
	Assess(ctx context.Context, creatorID int64, name string) creators.Verdict
}

// Reject reasons, cheapest check first. The order is part of the
// contract: an item is marked processed before anything else so a
// failure later never causes the same item to be evaluated twice.
const (
	reasonAlreadyProcessed = "already_processed"
	reasonNotAccepted      = "not_accepted"
	reasonNoTimestamp      = "no_timestamp"
	reasonTooOld           = "too_old"
	reasonNoCreator        = "no_creator"
	reasonKnownCreator     = "known_creator"
)

// Outcome describes what the evaluator did with one feed item.
type Outcome struct {
	Accepted     bool
	Reason       string // reject reason, empty when accepted
	QuotaReached bool   // true when this acceptance filled the user's quota
	Purchase     purchase.Result
}

// Evaluator applies one user's policy to one feed item. It owns the
// accept path end to end: quota bump, purchase attempt, audit record,
// notification and event publish.
type Evaluator struct {
	repo     store.Repository
	novelty  Assessor
	live     purchase.Purchaser
	sim      purchase.Purchaser
	notifier notify.Notifier
	hub      *events.Hub
}

// NewEvaluator wires the evaluator. live is the real purchase driver,
// sim the test-mode one; which runs is decided per user per item.
func NewEvaluator(repo store.Repository, novelty Assessor, live, sim purchase.Purchaser, notifier notify.Notifier, hub *events.Hub) *Evaluator {
	return &Evaluator{
		repo:     repo,
		novelty:  novelty,
		live:     live,
		sim:      sim,
		notifier: notifier,
		hub:      hub,
	}
}

// Evaluate runs the decision sequence for one item. Persistence failures
// are returned to the caller and terminate the monitor cycle; everything
// else resolves to an Outcome. On acceptance sess.FoundCount is updated
// in place so the caller sees current quota state.
func (e *Evaluator) Evaluate(ctx context.Context, sess *domain.UserSession, it market.Item) (Outcome, error) {
	// Mark first, unconditionally. The item is spent for this user the
	// first time it is seen, whatever happens next.
	fresh, err := e.repo.MarkItemProcessed(ctx, sess.UserID, it.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark item processed: %w", err)
	}
	if !fresh {
		return Outcome{Reason: reasonAlreadyProcessed}, nil
	}

	if !it.IsAccepted {
		return Outcome{Reason: reasonNotAccepted}, nil
	}

	ts, ok := it.BestTimestamp()
	if !ok {
		slog.Debug("Item has no usable timestamp", "item_id", it.ID, "name", it.Name)
		return Outcome{Reason: reasonNoTimestamp}, nil
	}
	if ageDays := int(time.Since(ts).Hours() / 24); ageDays > sess.MaxItemAgeDays {
		return Outcome{Reason: reasonTooOld}, nil
	}

	if it.CreatorID == 0 {
		return Outcome{Reason: reasonNoCreator}, nil
	}

	if v := e.novelty.Assess(ctx, it.CreatorID, it.CreatorName); v != creators.VerdictFirstTime {
		return Outcome{Reason: reasonKnownCreator}, nil
	}

	return e.accept(ctx, sess, it)
}

func (e *Evaluator) accept(ctx context.Context, sess *domain.UserSession, it market.Item) (Outcome, error) {
	newCount, err := e.repo.IncrementFoundCount(ctx, sess.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("increment found count: %w", err)
	}
	sess.FoundCount = newCount

	slog.Info("Opportunity found",
		"user_id", sess.UserID,
		"item_id", it.ID,
		"item_name", it.Name,
		"creator_id", it.CreatorID,
		"creator_name", it.CreatorName,
		"price_cents", it.PriceCents(),
		"found_count", newCount)

	result := e.attemptPurchase(ctx, sess, it)

	rec := domain.OpportunityRecord{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		ItemID:      it.ID,
		ItemName:    it.Name,
		CreatorID:   it.CreatorID,
		CreatorName: it.CreatorName,
		PriceCents:  it.PriceCents(),
		Attempted:   result.Attempted,
		Succeeded:   result.Success,
		Detail:      purchaseDetail(result),
		CreatedAt:   time.Now(),
	}
	if err := e.repo.AppendOpportunity(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("append opportunity record: %w", err)
	}

	if err := e.notifier.Send(ctx, sess.UserID, opportunityMessage(sess, it, result)); err != nil {
		slog.Warn("Opportunity notification failed", "user_id", sess.UserID, "error", err)
	}

	e.hub.Publish(events.Event{
		Type:        events.TypeOpportunity,
		UserID:      sess.UserID,
		ItemID:      it.ID,
		ItemName:    it.Name,
		CreatorName: it.CreatorName,
		PriceCents:  it.PriceCents(),
		Detail:      purchaseDetail(result),
	})

	return Outcome{
		Accepted:     true,
		QuotaReached: newCount >= sess.MaxOpportunities,
		Purchase:     result,
	}, nil
}

// attemptPurchase applies the purchase policy gates and runs at most one
// driver. The price and auto-purchase gates hold in both modes; only the
// credential gate is live-mode specific. Driver errors never propagate,
// they become a failed Result carrying the error text.
func (e *Evaluator) attemptPurchase(ctx context.Context, sess *domain.UserSession, it market.Item) purchase.Result {
	price := it.PriceCents()

	if !sess.AutoPurchase {
		return purchase.Result{Reason: "auto-purchase disabled"}
	}
	if price <= 0 {
		return purchase.Result{Reason: "no market listing yet"}
	}
	if price > sess.MaxPriceCents {
		return purchase.Result{Reason: fmt.Sprintf("price %s above limit %s",
			formatCents(price), formatCents(sess.MaxPriceCents))}
	}

	if sess.TestMode {
		res, err := e.sim.Attempt(ctx, sess.SteamToken, it.Name, price)
		if err != nil {
			return purchase.Result{Attempted: true, PriceCents: price, Reason: err.Error()}
		}
		return res
	}

	if !sess.HasToken() {
		return purchase.Result{Reason: "no steam token saved"}
	}

	res, err := e.live.Attempt(ctx, sess.SteamToken, it.Name, price)
	if err != nil {
		slog.Error("Purchase attempt failed",
			"user_id", sess.UserID, "item_name", it.Name, "error", err)
		return purchase.Result{Attempted: true, PriceCents: price, Reason: err.Error()}
	}
	return res
}

func purchaseDetail(r purchase.Result) string {
	switch {
	case r.Success && r.OrderID != "":
		return "order " + r.OrderID
	case r.Success:
		return "order placed"
	default:
		return r.Reason
	}
}

func opportunityMessage(sess *domain.UserSession, it market.Item, r purchase.Result) string {
	price := "not listed yet"
	if it.PriceCents() > 0 {
		price = formatCents(it.PriceCents())
	}

	var action string
	switch {
	case r.Success && sess.TestMode:
		action = "✅ Simulated purchase succeeded"
	case r.Success:
		action = "✅ Buy order placed"
	case r.Attempted:
		action = "❌ Purchase failed: " + r.Reason
	default:
		action = "⏭ Not attempted: " + r.Reason
	}

	return fmt.Sprintf("🎯 First-time creator skin found!\n\n%s\nby %s\nPrice: %s\n%s\nProgress: %d/%d",
		it.Name, it.CreatorName, price, action, sess.FoundCount, sess.MaxOpportunities)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
