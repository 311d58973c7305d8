package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS user_sessions (
		user_id INTEGER PRIMARY KEY,
		steam_token TEXT NOT NULL DEFAULT '',
		is_monitoring INTEGER NOT NULL DEFAULT 0,
		found_count INTEGER NOT NULL DEFAULT 0,
		max_opportunities INTEGER NOT NULL DEFAULT 10,
		auto_purchase INTEGER NOT NULL DEFAULT 1,
		max_price_cents INTEGER NOT NULL DEFAULT 1000,
		max_item_age_days INTEGER NOT NULL DEFAULT 3,
		test_mode INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS creators (
		creator_id INTEGER PRIMARY KEY,
		creator_name TEXT NOT NULL DEFAULT '',
		first_seen INTEGER NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		item_name TEXT NOT NULL DEFAULT '',
		creator_id INTEGER NOT NULL,
		creator_name TEXT NOT NULL DEFAULT '',
		price_cents INTEGER NOT NULL DEFAULT 0,
		attempted INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_opportunities_user ON opportunities(user_id, created_at);

	CREATE TABLE IF NOT EXISTS processed_items (
		user_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		processed_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, item_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `user_id, steam_token, is_monitoring, found_count,
	max_opportunities, auto_purchase, max_price_cents, max_item_age_days,
	test_mode, created_at, last_active`

func scanSession(row *sql.Row) (*domain.UserSession, error) {
	var sess domain.UserSession
	var createdAt, lastActive int64

	err := row.Scan(
		&sess.UserID, &sess.SteamToken, &sess.IsMonitoring, &sess.FoundCount,
		&sess.MaxOpportunities, &sess.AutoPurchase, &sess.MaxPriceCents,
		&sess.MaxItemAgeDays, &sess.TestMode, &createdAt, &lastActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastActiveAt = time.Unix(lastActive, 0)

	return &sess, nil
}

// GetSession retrieves a user session, or (nil, nil) when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, userID int64) (*domain.UserSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE user_id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, userID))
}

// CreateSession creates a session with the given defaults. If a session
// already exists the insert is a no-op and the existing row is returned.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID int64, defaults domain.SessionDefaults) (*domain.UserSession, error) {
	query := `
	INSERT INTO user_sessions (
		user_id, max_opportunities, auto_purchase, max_price_cents,
		max_item_age_days, test_mode, created_at, last_active
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query,
		userID, defaults.MaxOpportunities, defaults.AutoPurchase,
		defaults.MaxPriceCents, defaults.MaxItemAgeDays, defaults.TestMode,
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.GetSession(ctx, userID)
}

// setSessionValue updates one session column together with last_active.
// The query must carry exactly three placeholders: value, last_active,
// user_id.
func (s *SQLiteStore) setSessionValue(ctx context.Context, op, query string, userID int64, value interface{}) error {
	result, err := s.db.ExecContext(ctx, query, value, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn(op+" affected 0 rows", "user_id", userID)
	}

	return nil
}

// SetSteamToken stores the user's Steam credential token.
func (s *SQLiteStore) SetSteamToken(ctx context.Context, userID int64, token string) error {
	query := `UPDATE user_sessions SET steam_token = ?, last_active = ? WHERE user_id = ?`
	return s.setSessionValue(ctx, "set steam_token", query, userID, token)
}

// SetAutoPurchase toggles automatic purchase attempts.
func (s *SQLiteStore) SetAutoPurchase(ctx context.Context, userID int64, enabled bool) error {
	query := `UPDATE user_sessions SET auto_purchase = ?, last_active = ? WHERE user_id = ?`
	return s.setSessionValue(ctx, "set auto_purchase", query, userID, enabled)
}

// SetMaxPriceCents updates the price ceiling.
func (s *SQLiteStore) SetMaxPriceCents(ctx context.Context, userID int64, cents int64) error {
	query := `UPDATE user_sessions SET max_price_cents = ?, last_active = ? WHERE user_id = ?`
	return s.setSessionValue(ctx, "set max_price_cents", query, userID, cents)
}

// SetMaxItemAgeDays updates the item freshness window.
func (s *SQLiteStore) SetMaxItemAgeDays(ctx context.Context, userID int64, days int) error {
	query := `UPDATE user_sessions SET max_item_age_days = ?, last_active = ? WHERE user_id = ?`
	return s.setSessionValue(ctx, "set max_item_age_days", query, userID, days)
}

// SetTestMode toggles simulated purchases.
func (s *SQLiteStore) SetTestMode(ctx context.Context, userID int64, enabled bool) error {
	query := `UPDATE user_sessions SET test_mode = ?, last_active = ? WHERE user_id = ?`
	return s.setSessionValue(ctx, "set test_mode", query, userID, enabled)
}

// SetMonitoring records whether a monitor loop is running for the user.
// Retried on SQLITE_BUSY because monitor loops call it from their cleanup
// path, where giving up would leave a stale flag.
func (s *SQLiteStore) SetMonitoring(ctx context.Context, userID int64, active bool) error {
	query := `UPDATE user_sessions SET is_monitoring = ?, last_active = ? WHERE user_id = ?`
	return withBusyRetry("set is_monitoring", func() error {
		return s.setSessionValue(ctx, "set is_monitoring", query, userID, active)
	})
}

// IncrementFoundCount bumps the accepted-opportunity counter and returns
// the new value.
func (s *SQLiteStore) IncrementFoundCount(ctx context.Context, userID int64) (int, error) {
	update := `UPDATE user_sessions SET found_count = found_count + 1, last_active = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, update, time.Now().Unix(), userID)
	if err != nil {
		return 0, fmt.Errorf("increment found_count: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("increment found_count: user %d not found", userID)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT found_count FROM user_sessions WHERE user_id = ?`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("read found_count: %w", err)
	}
	return count, nil
}

// ResetProgress zeroes the found counter and clears the user's
// processed-item set in one transaction.
func (s *SQLiteStore) ResetProgress(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_sessions SET found_count = 0, last_active = ? WHERE user_id = ?`,
		time.Now().Unix(), userID,
	); err != nil {
		return fmt.Errorf("reset found_count: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM processed_items WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("clear processed items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset transaction: %w", err)
	}
	return nil
}

// MarkItemProcessed records that the user has evaluated the item. Returns
// true when the pair was fresh. This is the dedup primitive, so it is
// retried on SQLITE_BUSY rather than risking a skipped mark.
func (s *SQLiteStore) MarkItemProcessed(ctx context.Context, userID, itemID int64) (bool, error) {
	query := `
	INSERT INTO processed_items (user_id, item_id, processed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id, item_id) DO NOTHING`

	var fresh bool
	err := withBusyRetry("mark item processed", func() error {
		result, err := s.db.ExecContext(ctx, query, userID, itemID, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("mark item processed: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		fresh = rows > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// ClearProcessedItems empties the user's processed-item set.
func (s *SQLiteStore) ClearProcessedItems(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_items WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("clear processed items: %w", err)
	}
	return nil
}

// ProcessedCount returns the size of the user's processed-item set.
func (s *SQLiteStore) ProcessedCount(ctx context.Context, userID int64) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_items WHERE user_id = ?`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed items: %w", err)
	}
	return count, nil
}

// UpsertCreator inserts or upgrades a creator record. An existing row
// keeps its first_seen timestamp; the name and item count are refreshed.
func (s *SQLiteStore) UpsertCreator(ctx context.Context, rec domain.CreatorRecord) error {
	query := `
	INSERT INTO creators (creator_id, creator_name, first_seen, item_count)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(creator_id) DO UPDATE SET
		creator_name = excluded.creator_name,
		item_count = excluded.item_count`

	firstSeen := rec.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}

	return withBusyRetry("upsert creator", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			rec.CreatorID, rec.Name, firstSeen.Unix(), rec.ItemCount,
		); err != nil {
			return fmt.Errorf("upsert creator: %w", err)
		}
		return nil
	})
}

// ListKnownCreatorIDs returns every disqualified creator id.
func (s *SQLiteStore) ListKnownCreatorIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT creator_id FROM creators`)
	if err != nil {
		return nil, fmt.Errorf("query creator ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close creator id rows", "error", closeErr)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan creator id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creator ids: %w", err)
	}

	return ids, nil
}

// AppendOpportunity writes one immutable opportunity record.
func (s *SQLiteStore) AppendOpportunity(ctx context.Context, rec domain.OpportunityRecord) error {
	query := `
	INSERT INTO opportunities (
		id, user_id, item_id, item_name, creator_id, creator_name,
		price_cents, attempted, succeeded, detail, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return withBusyRetry("append opportunity", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.UserID, rec.ItemID, rec.ItemName,
			rec.CreatorID, rec.CreatorName, rec.PriceCents,
			rec.Attempted, rec.Succeeded, rec.Detail, createdAt.Unix(),
		); err != nil {
			return fmt.Errorf("append opportunity: %w", err)
		}
		return nil
	})
}

// ListOpportunities returns the user's most recent opportunity records,
// newest first.
func (s *SQLiteStore) ListOpportunities(ctx context.Context, userID int64, limit int) ([]domain.OpportunityRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
	SELECT id, user_id, item_id, item_name, creator_id, creator_name,
	       price_cents, attempted, succeeded, detail, created_at
	FROM opportunities
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close opportunity rows", "error", closeErr)
		}
	}()

	var records []domain.OpportunityRecord
	for rows.Next() {
		var rec domain.OpportunityRecord
		var createdAt int64

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ItemID, &rec.ItemName,
			&rec.CreatorID, &rec.CreatorName, &rec.PriceCents,
			&rec.Attempted, &rec.Succeeded, &rec.Detail, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan opportunity row: %w", err)
		}

		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}

	return records, nil
}

// ResetAllMonitoring clears every monitoring flag. Called once at boot so
// a crash never leaves sessions that look active but have no loop.
func (s *SQLiteStore) ResetAllMonitoring(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_monitoring = 0 WHERE is_monitoring = 1`)
	if err != nil {
		return 0, fmt.Errorf("reset monitoring flags: %w", err)
	}
	return result.RowsAffected()
}
