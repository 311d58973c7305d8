package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func testDefaults() domain.SessionDefaults {
	return domain.SessionDefaults{
		MaxOpportunities: 10,
		AutoPurchase:     true,
		MaxPriceCents:    1000,
		MaxItemAgeDays:   3,
		TestMode:         true,
	}
}

func TestSQLiteStore_GetSessionMissing(t *testing.T) {
	repo := newTestStore(t)

	sess, err := repo.GetSession(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess != nil {
		t.Errorf("Expected nil session for unknown user, got %+v", sess)
	}
}

func TestSQLiteStore_CreateSession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	sess, err := repo.CreateSession(ctx, 42, testDefaults())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess == nil {
		t.Fatal("Expected session, got nil")
	}
	if sess.UserID != 42 {
		t.Errorf("Expected user id 42, got %d", sess.UserID)
	}
	if sess.MaxOpportunities != 10 {
		t.Errorf("Expected max opportunities 10, got %d", sess.MaxOpportunities)
	}
	if !sess.AutoPurchase {
		t.Error("Expected auto purchase enabled by default")
	}
	if sess.MaxPriceCents != 1000 {
		t.Errorf("Expected max price 1000, got %d", sess.MaxPriceCents)
	}
	if sess.MaxItemAgeDays != 3 {
		t.Errorf("Expected max age 3, got %d", sess.MaxItemAgeDays)
	}
	if !sess.TestMode {
		t.Error("Expected test mode enabled by default")
	}
	if sess.IsMonitoring {
		t.Error("Expected monitoring off for a new session")
	}
	if sess.FoundCount != 0 {
		t.Errorf("Expected found count 0, got %d", sess.FoundCount)
	}
}

func TestSQLiteStore_CreateSessionIdempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, 42, testDefaults()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.SetSteamToken(ctx, 42, "secret"); err != nil {
		t.Fatalf("SetSteamToken: %v", err)
	}

	// Creating again must not reset the existing row.
	sess, err := repo.CreateSession(ctx, 42, testDefaults())
	if err != nil {
		t.Fatalf("CreateSession (second): %v", err)
	}
	if sess.SteamToken != "secret" {
		t.Errorf("Expected token preserved on re-create, got %q", sess.SteamToken)
	}
}

func TestSQLiteStore_Setters(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, 7, testDefaults()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := repo.SetSteamToken(ctx, 7, "tok123"); err != nil {
		t.Fatalf("SetSteamToken: %v", err)
	}
	if err := repo.SetAutoPurchase(ctx, 7, false); err != nil {
		t.Fatalf("SetAutoPurchase: %v", err)
	}
	if err := repo.SetMaxPriceCents(ctx, 7, 2500); err != nil {
		t.Fatalf("SetMaxPriceCents: %v", err)
	}
	if err := repo.SetMaxItemAgeDays(ctx, 7, 7); err != nil {
		t.Fatalf("SetMaxItemAgeDays: %v", err)
	}
	if err := repo.SetTestMode(ctx, 7, false); err != nil {
		t.Fatalf("SetTestMode: %v", err)
	}
	if err := repo.SetMonitoring(ctx, 7, true); err != nil {
		t.Fatalf("SetMonitoring: %v", err)
	}

	sess, err := repo.GetSession(ctx, 7)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.SteamToken != "tok123" {
		t.Errorf("Expected token tok123, got %q", sess.SteamToken)
	}
	if sess.AutoPurchase {
		t.Error("Expected auto purchase disabled")
	}
	if sess.MaxPriceCents != 2500 {
		t.Errorf("Expected max price 2500, got %d", sess.MaxPriceCents)
	}
	if sess.MaxItemAgeDays != 7 {
		t.Errorf("Expected max age 7, got %d", sess.MaxItemAgeDays)
	}
	if sess.TestMode {
		t.Error("Expected test mode disabled")
	}
	if !sess.IsMonitoring {
		t.Error("Expected monitoring enabled")
	}
}

func TestSQLiteStore_IncrementFoundCount(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, 7, testDefaults()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementFoundCount(ctx, 7)
		if err != nil {
			t.Fatalf("IncrementFoundCount: %v", err)
		}
		if got != want {
			t.Errorf("Expected found count %d, got %d", want, got)
		}
	}
}

func TestSQLiteStore_IncrementFoundCountMissingUser(t *testing.T) {
	repo := newTestStore(t)

	if _, err := repo.IncrementFoundCount(context.Background(), 99); err == nil {
		t.Error("Expected error incrementing count for unknown user")
	}
}

func TestSQLiteStore_MarkItemProcessed(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	fresh, err := repo.MarkItemProcessed(ctx, 7, 1001)
	if err != nil {
		t.Fatalf("MarkItemProcessed: %v", err)
	}
	if !fresh {
		t.Error("Expected first mark to be fresh")
	}

	fresh, err = repo.MarkItemProcessed(ctx, 7, 1001)
	if err != nil {
		t.Fatalf("MarkItemProcessed (second): %v", err)
	}
	if fresh {
		t.Error("Expected second mark of same item to not be fresh")
	}

	// Same item for a different user is a separate fact.
	fresh, err = repo.MarkItemProcessed(ctx, 8, 1001)
	if err != nil {
		t.Fatalf("MarkItemProcessed (other user): %v", err)
	}
	if !fresh {
		t.Error("Expected mark for another user to be fresh")
	}

	count, err := repo.ProcessedCount(ctx, 7)
	if err != nil {
		t.Fatalf("ProcessedCount: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected processed count 1, got %d", count)
	}

	// Clearing one user's set leaves other users alone.
	if err := repo.ClearProcessedItems(ctx, 7); err != nil {
		t.Fatalf("ClearProcessedItems: %v", err)
	}
	count, err = repo.ProcessedCount(ctx, 7)
	if err != nil {
		t.Fatalf("ProcessedCount after clear: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected processed count 0 after clear, got %d", count)
	}
	count, err = repo.ProcessedCount(ctx, 8)
	if err != nil {
		t.Fatalf("ProcessedCount other user: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected other user's processed count 1, got %d", count)
	}
}

func TestSQLiteStore_ResetProgress(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, 7, testDefaults()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.SetMaxPriceCents(ctx, 7, 2500); err != nil {
		t.Fatalf("SetMaxPriceCents: %v", err)
	}
	if _, err := repo.IncrementFoundCount(ctx, 7); err != nil {
		t.Fatalf("IncrementFoundCount: %v", err)
	}
	if _, err := repo.MarkItemProcessed(ctx, 7, 1001); err != nil {
		t.Fatalf("MarkItemProcessed: %v", err)
	}

	if err := repo.ResetProgress(ctx, 7); err != nil {
		t.Fatalf("ResetProgress: %v", err)
	}

	sess, err := repo.GetSession(ctx, 7)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.FoundCount != 0 {
		t.Errorf("Expected found count 0 after reset, got %d", sess.FoundCount)
	}
	if sess.MaxPriceCents != 2500 {
		t.Errorf("Expected settings preserved across reset, got max price %d", sess.MaxPriceCents)
	}

	count, err := repo.ProcessedCount(ctx, 7)
	if err != nil {
		t.Fatalf("ProcessedCount: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty processed set after reset, got %d", count)
	}

	// A previously processed item is evaluable again.
	fresh, err := repo.MarkItemProcessed(ctx, 7, 1001)
	if err != nil {
		t.Fatalf("MarkItemProcessed after reset: %v", err)
	}
	if !fresh {
		t.Error("Expected item to be fresh again after reset")
	}
}

func TestSQLiteStore_UpsertCreator(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	rec := domain.CreatorRecord{CreatorID: 555, Name: "maker", ItemCount: 2}
	if err := repo.UpsertCreator(ctx, rec); err != nil {
		t.Fatalf("UpsertCreator: %v", err)
	}

	rec.ItemCount = 5
	if err := repo.UpsertCreator(ctx, rec); err != nil {
		t.Fatalf("UpsertCreator (second): %v", err)
	}

	ids, err := repo.ListKnownCreatorIDs(ctx)
	if err != nil {
		t.Fatalf("ListKnownCreatorIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("Expected 1 creator id, got %d", len(ids))
	}
	if ids[0] != 555 {
		t.Errorf("Expected creator id 555, got %d", ids[0])
	}
}

func TestSQLiteStore_Opportunities(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := domain.OpportunityRecord{
			ID:          "op-" + string(rune('a'+i)),
			UserID:      7,
			ItemID:      int64(1000 + i),
			ItemName:    "Skin",
			CreatorID:   555,
			CreatorName: "maker",
			PriceCents:  500,
			Attempted:   true,
			Succeeded:   i%2 == 0,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.AppendOpportunity(ctx, rec); err != nil {
			t.Fatalf("AppendOpportunity: %v", err)
		}
	}

	records, err := repo.ListOpportunities(ctx, 7, 2)
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ItemID != 1002 || records[1].ItemID != 1001 {
		t.Errorf("Expected newest first (1002, 1001), got (%d, %d)",
			records[0].ItemID, records[1].ItemID)
	}

	other, err := repo.ListOpportunities(ctx, 8, 10)
	if err != nil {
		t.Fatalf("ListOpportunities (other user): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no records for other user, got %d", len(other))
	}
}

func TestSQLiteStore_ResetAllMonitoring(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := repo.CreateSession(ctx, id, testDefaults()); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := repo.SetMonitoring(ctx, id, true); err != nil {
			t.Fatalf("SetMonitoring: %v", err)
		}
	}

	cleared, err := repo.ResetAllMonitoring(ctx)
	if err != nil {
		t.Fatalf("ResetAllMonitoring: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Expected 2 flags cleared, got %d", cleared)
	}

	sess, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.IsMonitoring {
		t.Error("Expected monitoring flag cleared")
	}
}
