package creators

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// fakeProber scripts the remote lookups and counts calls.
type fakeProber struct {
	profileErr   error
	itemCount    int
	itemCountErr error
	profileCalls int
	countCalls   int
}

func (f *fakeProber) FetchCreatorProfile(ctx context.Context, creatorID int64) (*market.ProfileSummary, error) {
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &market.ProfileSummary{ID: creatorID, Name: "maker"}, nil
}

func (f *fakeProber) FetchCreatorItemCount(ctx context.Context, creatorID int64) (int, error) {
	f.countCalls++
	if f.itemCountErr != nil {
		return 0, f.itemCountErr
	}
	return f.itemCount, nil
}

func newTestService(t *testing.T, prober MarketProber) *Service {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := NewService(repo, prober)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc
}

func TestService_AssessProfileNotFound(t *testing.T) {
	prober := &fakeProber{profileErr: market.ErrNotFound}
	svc := newTestService(t, prober)

	verdict := svc.Assess(context.Background(), 100, "maker")
	if verdict != VerdictFirstTime {
		t.Errorf("Expected first_time on 404, got %s", verdict)
	}
	if prober.countCalls != 0 {
		t.Errorf("Expected no item count call after 404, got %d", prober.countCalls)
	}
}

func TestService_AssessLookupErrorFailsOpen(t *testing.T) {
	prober := &fakeProber{profileErr: errors.New("connection refused")}
	svc := newTestService(t, prober)

	verdict := svc.Assess(context.Background(), 100, "maker")
	if verdict != VerdictFirstTime {
		t.Errorf("Expected first_time on transport error, got %s", verdict)
	}
}

func TestService_AssessCountErrorFailsOpen(t *testing.T) {
	prober := &fakeProber{itemCountErr: errors.New("timeout")}
	svc := newTestService(t, prober)

	verdict := svc.Assess(context.Background(), 100, "maker")
	if verdict != VerdictFirstTime {
		t.Errorf("Expected first_time on count error, got %s", verdict)
	}
}

func TestService_AssessSingleItemIsFirstTime(t *testing.T) {
	prober := &fakeProber{itemCount: 1}
	svc := newTestService(t, prober)

	verdict := svc.Assess(context.Background(), 100, "maker")
	if verdict != VerdictFirstTime {
		t.Errorf("Expected first_time for count 1, got %s", verdict)
	}
	if svc.IsKnown(100) {
		t.Error("Expected single-item creator to stay unknown")
	}
}

func TestService_AssessDisqualifies(t *testing.T) {
	prober := &fakeProber{itemCount: 3}
	svc := newTestService(t, prober)
	ctx := context.Background()

	verdict := svc.Assess(ctx, 100, "maker")
	if verdict != VerdictDisqualified {
		t.Errorf("Expected disqualified for count 3, got %s", verdict)
	}
	if !svc.IsKnown(100) {
		t.Error("Expected creator to be known after disqualification")
	}

	// Later assessments hit the cache, never the network.
	verdict = svc.Assess(ctx, 100, "maker")
	if verdict != VerdictKnown {
		t.Errorf("Expected known on second assessment, got %s", verdict)
	}
	if prober.profileCalls != 1 {
		t.Errorf("Expected exactly 1 profile lookup, got %d", prober.profileCalls)
	}
}

func TestService_DisqualificationSurvivesReload(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	first := NewService(repo, &fakeProber{})
	if err := first.Disqualify(ctx, 100, "maker", 2); err != nil {
		t.Fatalf("Disqualify: %v", err)
	}

	// A fresh service over the same store sees the same fact.
	second := NewService(repo, &fakeProber{})
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !second.IsKnown(100) {
		t.Error("Expected disqualification to survive a restart")
	}
	if second.Size() != 1 {
		t.Errorf("Expected 1 known creator, got %d", second.Size())
	}
}

func TestService_ConcurrentAccess(t *testing.T) {
	svc := newTestService(t, &fakeProber{itemCount: 5})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(0); i < 200; i++ {
			_ = svc.Disqualify(ctx, i, "maker", 2)
		}
	}()

	for i := int64(0); i < 200; i++ {
		svc.IsKnown(i)
	}
	<-done

	if svc.Size() != 200 {
		t.Errorf("Expected 200 known creators, got %d", svc.Size())
	}
}
