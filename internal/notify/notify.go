// Package notify defines how users hear about bot activity.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers one message to one user. Delivery is best-effort:
// callers log failures and move on, they never block a monitor loop on
// a notification.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// LogNotifier writes notifications to the process log. It is the
// fallback when no chat transport is configured, so the core keeps
// working in development.
type LogNotifier struct{}

// Send logs the notification.
func (LogNotifier) Send(_ context.Context, userID int64, text string) error {
	slog.Info("Notification", "user_id", userID, "text", text)
	return nil
}
