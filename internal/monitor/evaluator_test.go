package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/creators"
	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	"github.com/HybieGee/Rust-Skin-Bot/internal/events"
	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/purchase"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

type fakeAssessor struct {
	mu      sync.Mutex
	verdict creators.Verdict
	calls   int
}

func (f *fakeAssessor) Assess(_ context.Context, _ int64, _ string) creators.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verdict
}

func (f *fakeAssessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePurchaser struct {
	mu      sync.Mutex
	succeed bool
	err     error
	calls   int
}

func (f *fakePurchaser) Attempt(_ context.Context, _, _ string, priceCents int64) (purchase.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return purchase.Result{}, f.err
	}
	if !f.succeed {
		return purchase.Result{Attempted: true, PriceCents: priceCents, Reason: "rejected"}, nil
	}
	return purchase.Result{Attempted: true, Success: true, PriceCents: priceCents, OrderID: "9001"}, nil
}

func (f *fakePurchaser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Send(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakeNotifier) contains(substr string) bool {
	for _, m := range f.all() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type evalFixture struct {
	repo     store.Repository
	assessor *fakeAssessor
	live     *fakePurchaser
	sim      *fakePurchaser
	notifier *fakeNotifier
	hub      *events.Hub
	eval     *Evaluator
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	fx := &evalFixture{
		repo:     repo,
		assessor: &fakeAssessor{verdict: creators.VerdictFirstTime},
		live:     &fakePurchaser{succeed: true},
		sim:      &fakePurchaser{succeed: true},
		notifier: &fakeNotifier{},
		hub:      events.NewHub(16),
	}
	fx.eval = NewEvaluator(repo, fx.assessor, fx.live, fx.sim, fx.notifier, fx.hub)
	return fx
}

func (fx *evalFixture) newSession(t *testing.T, userID int64) *domain.UserSession {
	t.Helper()
	sess, err := fx.repo.CreateSession(context.Background(), userID, domain.SessionDefaults{
		MaxOpportunities: 10,
		AutoPurchase:     true,
		MaxPriceCents:    1000,
		MaxItemAgeDays:   3,
		TestMode:         true,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func acceptedItem(id, creatorID int64, age time.Duration, priceCents int64) market.Item {
	return market.Item{
		ID:              id,
		Name:            fmt.Sprintf("Skin %d", id),
		CreatorID:       creatorID,
		CreatorName:     fmt.Sprintf("Creator %d", creatorID),
		IsAccepted:      true,
		TimeAccepted:    time.Now().Add(-age).Format(time.RFC3339Nano),
		SellOrderLowest: priceCents,
	}
}

func TestEvaluator_AcceptsFirstTimeCreator(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, 1)

	out, err := fx.eval.Evaluate(ctx, sess, acceptedItem(100, 500, 2*time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("Expected acceptance, got rejection %q", out.Reason)
	}
	if sess.FoundCount != 1 {
		t.Errorf("Expected found count 1, got %d", sess.FoundCount)
	}
	if out.QuotaReached {
		t.Error("Expected quota not reached at 1/10")
	}
	if !out.Purchase.Attempted || !out.Purchase.Success {
		t.Errorf("Expected successful simulated purchase, got %+v", out.Purchase)
	}

	recs, err := fx.repo.ListOpportunities(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 opportunity record, got %d", len(recs))
	}
	if recs[0].ItemID != 100 || recs[0].CreatorID != 500 || !recs[0].Succeeded {
		t.Errorf("Unexpected record %+v", recs[0])
	}

	if msgs := fx.notifier.all(); len(msgs) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(msgs))
	}
}

func TestEvaluator_SecondEvaluationIsNoOp(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, 1)
	item := acceptedItem(100, 500, 2*time.Hour, 750)

	if _, err := fx.eval.Evaluate(ctx, sess, item); err != nil {
		t.Fatalf("First evaluate: %v", err)
	}
	out, err := fx.eval.Evaluate(ctx, sess, item)
	if err != nil {
		t.Fatalf("Second evaluate: %v", err)
	}
	if out.Accepted || out.Reason != reasonAlreadyProcessed {
		t.Errorf("Expected already_processed rejection, got %+v", out)
	}

	recs, err := fx.repo.ListOpportunities(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("Expected exactly 1 record after duplicate evaluation, got %d", len(recs))
	}
	if sess.FoundCount != 1 {
		t.Errorf("Expected found count to stay 1, got %d", sess.FoundCount)
	}
}

func TestEvaluator_DedupMarksRejectedItemsToo(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, 1)

	item := acceptedItem(100, 500, 2*time.Hour, 750)
	item.IsAccepted = false

	out, err := fx.eval.Evaluate(ctx, sess, item)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Reason != reasonNotAccepted {
		t.Fatalf("Expected not_accepted, got %q", out.Reason)
	}

	// The item is spent even though it was rejected.
	out, err = fx.eval.Evaluate(ctx, sess, item)
	if err != nil {
		t.Fatalf("Evaluate again: %v", err)
	}
	if out.Reason != reasonAlreadyProcessed {
		t.Errorf("Expected already_processed on second pass, got %q", out.Reason)
	}
}

func TestEvaluator_AgeBoundary(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, 1)

	// Exactly maxItemAgeDays old: still accepted.
	out, err := fx.eval.Evaluate(ctx, sess, acceptedItem(100, 500, 72*time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate boundary item: %v", err)
	}
	if !out.Accepted {
		t.Errorf("Expected item exactly 3 days old to be accepted, got %q", out.Reason)
	}

	// One day past the window: rejected.
	out, err = fx.eval.Evaluate(ctx, sess, acceptedItem(101, 501, 96*time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate stale item: %v", err)
	}
	if out.Accepted || out.Reason != reasonTooOld {
		t.Errorf("Expected too_old rejection for 4-day item, got %+v", out)
	}
}

func TestEvaluator_RejectsWhenNoTimestampParses(t *testing.T) {
	fx := newEvalFixture(t)
	sess := fx.newSession(t, 1)

	item := acceptedItem(100, 500, time.Hour, 750)
	item.TimeAccepted = ""
	item.TimeCreated = "not-a-time"

	out, err := fx.eval.Evaluate(context.Background(), sess, item)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Accepted || out.Reason != reasonNoTimestamp {
		t.Errorf("Expected no_timestamp rejection, got %+v", out)
	}
}

func TestEvaluator_RejectsMissingCreator(t *testing.T) {
	fx := newEvalFixture(t)
	sess := fx.newSession(t, 1)

	item := acceptedItem(100, 0, time.Hour, 750)

	out, err := fx.eval.Evaluate(context.Background(), sess, item)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Reason != reasonNoCreator {
		t.Errorf("Expected no_creator rejection, got %+v", out)
	}
	if fx.assessor.callCount() != 0 {
		t.Errorf("Expected no novelty lookup for creator-less item, got %d calls", fx.assessor.callCount())
	}
}

func TestEvaluator_RejectsKnownCreator(t *testing.T) {
	fx := newEvalFixture(t)
	fx.assessor.verdict = creators.VerdictKnown
	sess := fx.newSession(t, 1)

	out, err := fx.eval.Evaluate(context.Background(), sess, acceptedItem(100, 500, time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Accepted || out.Reason != reasonKnownCreator {
		t.Errorf("Expected known_creator rejection, got %+v", out)
	}
	if len(fx.notifier.all()) != 0 {
		t.Errorf("Expected no notification for rejection, got %d", len(fx.notifier.all()))
	}
}

func TestEvaluator_TestModeNeverCallsLiveDriver(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, 1)
	sess.TestMode = true

	out, err := fx.eval.Evaluate(ctx, sess, acceptedItem(100, 500, time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Accepted || !out.Purchase.Attempted {
		t.Fatalf("Expected attempted simulated purchase, got %+v", out)
	}
	if fx.live.callCount() != 0 {
		t.Errorf("Live driver called %d times in test mode, expected 0", fx.live.callCount())
	}
	if fx.sim.callCount() != 1 {
		t.Errorf("Expected 1 simulator call, got %d", fx.sim.callCount())
	}
}

func TestEvaluator_PurchaseGates(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*domain.UserSession)
		priceCents int64
		wantReason string
	}{
		{
			name:       "auto purchase disabled",
			mutate:     func(s *domain.UserSession) { s.AutoPurchase = false },
			priceCents: 750,
			wantReason: "auto-purchase disabled",
		},
		{
			name:       "no listing",
			mutate:     func(s *domain.UserSession) {},
			priceCents: 0,
			wantReason: "no market listing",
		},
		{
			name:       "price above limit",
			mutate:     func(s *domain.UserSession) {},
			priceCents: 1500,
			wantReason: "above limit",
		},
		{
			name: "live mode without token",
			mutate: func(s *domain.UserSession) {
				s.TestMode = false
				s.SteamToken = ""
			},
			priceCents: 750,
			wantReason: "no steam token",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newEvalFixture(t)
			sess := fx.newSession(t, int64(i+1))
			tt.mutate(sess)

			out, err := fx.eval.Evaluate(context.Background(), sess, acceptedItem(100, 500, time.Hour, tt.priceCents))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if !out.Accepted {
				t.Fatalf("Expected acceptance, got rejection %q", out.Reason)
			}
			if out.Purchase.Attempted {
				t.Errorf("Expected purchase to be skipped, got %+v", out.Purchase)
			}
			if !strings.Contains(out.Purchase.Reason, tt.wantReason) {
				t.Errorf("Expected reason containing %q, got %q", tt.wantReason, out.Purchase.Reason)
			}
			if fx.live.callCount() != 0 || fx.sim.callCount() != 0 {
				t.Errorf("Expected no driver calls, got live=%d sim=%d", fx.live.callCount(), fx.sim.callCount())
			}
		})
	}
}

func TestEvaluator_LiveDriverErrorBecomesFailedOutcome(t *testing.T) {
	fx := newEvalFixture(t)
	fx.live.err = errors.New("connection reset")
	ctx := context.Background()

	sess := fx.newSession(t, 1)
	sess.TestMode = false
	sess.SteamToken = "tok"

	out, err := fx.eval.Evaluate(ctx, sess, acceptedItem(100, 500, time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("Expected acceptance, got %q", out.Reason)
	}
	if !out.Purchase.Attempted || out.Purchase.Success {
		t.Errorf("Expected failed attempt, got %+v", out.Purchase)
	}
	if !strings.Contains(out.Purchase.Reason, "connection reset") {
		t.Errorf("Expected error text in reason, got %q", out.Purchase.Reason)
	}

	recs, err := fx.repo.ListOpportunities(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(recs) != 1 || recs[0].Succeeded {
		t.Errorf("Expected one failed record, got %+v", recs)
	}
}

func TestEvaluator_QuotaReachedFlag(t *testing.T) {
	fx := newEvalFixture(t)
	ctx := context.Background()

	sess, err := fx.repo.CreateSession(ctx, 1, domain.SessionDefaults{
		MaxOpportunities: 1,
		AutoPurchase:     true,
		MaxPriceCents:    1000,
		MaxItemAgeDays:   3,
		TestMode:         true,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	out, err := fx.eval.Evaluate(ctx, sess, acceptedItem(100, 500, time.Hour, 750))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Accepted || !out.QuotaReached {
		t.Errorf("Expected acceptance filling the quota, got %+v", out)
	}
}

func TestEvaluator_PublishesOpportunityEvent(t *testing.T) {
	fx := newEvalFixture(t)
	sess := fx.newSession(t, 1)

	ch, cancel := fx.hub.Subscribe()
	defer cancel()

	if _, err := fx.eval.Evaluate(context.Background(), sess, acceptedItem(100, 500, time.Hour, 750)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	select {
	case e := <-ch:
		if e.Type != events.TypeOpportunity || e.ItemID != 100 {
			t.Errorf("Unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("Expected an opportunity event")
	}
}
