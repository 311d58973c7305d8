package store

import (
	"log/slog"
	"strings"
	"time"
)

// isSQLiteConflict checks if the error is a SQLITE_BUSY or
// "database is locked" error. Both are concurrency errors that
// warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}

// withBusyRetry runs fn, retrying on SQLite concurrency errors with
// exponential backoff: 100ms, 200ms, 400ms. Other errors are returned
// immediately.
func withBusyRetry(op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("sqlite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}
