package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/events"
	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/notify"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// Feed is the slice of the marketplace client the loops poll.
type Feed interface {
	FetchRecentItems(ctx context.Context, count int) ([]market.Item, error)
}

// Start guard failures, surfaced to the command layer so it can phrase
// each one differently.
var (
	ErrAlreadyMonitoring = errors.New("monitoring already running")
	ErrQuotaExhausted    = errors.New("opportunity quota exhausted")
	ErrTokenRequired     = errors.New("live mode requires a steam token")
	ErrNoSession         = errors.New("no session for user")
)

// cleanupTimeout bounds the teardown writes that must run even after the
// loop context is gone.
const cleanupTimeout = 5 * time.Second

type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the monitor loops: one per actively-monitoring user,
// keyed by user id. Starting an already-running user is rejected here,
// not left to the loop body.
type Supervisor struct {
	repo     store.Repository
	feed     Feed
	eval     *Evaluator
	notifier notify.Notifier
	hub      *events.Hub
	interval time.Duration
	pageSize int

	mu    sync.Mutex
	loops map[int64]*loopHandle

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewSupervisor creates the supervisor. Loops live on an internal root
// context so they survive the request that started them; Shutdown
// cancels them all.
func NewSupervisor(repo store.Repository, feed Feed, eval *Evaluator, notifier notify.Notifier, hub *events.Hub, interval time.Duration, pageSize int) *Supervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Supervisor{
		repo:       repo,
		feed:       feed,
		eval:       eval,
		notifier:   notifier,
		hub:        hub,
		interval:   interval,
		pageSize:   pageSize,
		loops:      make(map[int64]*loopHandle),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Start launches a monitor loop for the user. It returns
// ErrAlreadyMonitoring, ErrQuotaExhausted, ErrTokenRequired or
// ErrNoSession when the guards fail. ctx covers only the guard reads;
// the loop itself runs on the supervisor's root context.
func (s *Supervisor) Start(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.loops[userID]; running {
		return ErrAlreadyMonitoring
	}

	sess, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return ErrNoSession
	}
	if sess.QuotaReached() {
		return ErrQuotaExhausted
	}
	if !sess.TestMode && !sess.HasToken() {
		return ErrTokenRequired
	}

	if err := s.repo.SetMonitoring(ctx, userID, true); err != nil {
		return fmt.Errorf("set monitoring flag: %w", err)
	}

	loopCtx, cancel := context.WithCancel(s.baseCtx)
	handle := &loopHandle{cancel: cancel, done: make(chan struct{})}
	s.loops[userID] = handle

	go s.run(loopCtx, userID, handle)

	slog.Info("Monitoring started", "user_id", userID,
		"test_mode", sess.TestMode, "remaining_quota", sess.RemainingQuota())
	s.hub.Publish(events.Event{Type: events.TypeMonitorStarted, UserID: userID})
	return nil
}

// Stop cancels the user's loop and waits for it to finish. Returns false
// when no loop was running.
func (s *Supervisor) Stop(userID int64) bool {
	s.mu.Lock()
	handle, ok := s.loops[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	handle.cancel()
	<-handle.done
	slog.Info("Monitoring stopped", "user_id", userID)
	return true
}

// IsRunning reports whether the user currently has a loop.
func (s *Supervisor) IsRunning(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[userID]
	return ok
}

// ActiveCount returns the number of running loops.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// Shutdown cancels every loop and waits for them to drain, bounded by
// ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.baseCancel()

	s.mu.Lock()
	handles := make([]*loopHandle, 0, len(s.loops))
	for _, h := range s.loops {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run is the loop body: poll, evaluate, sleep, repeat. Teardown always
// clears the monitoring flag, whatever path ends the loop; a recovered
// panic is reported to the user like any other loop-fatal error.
func (s *Supervisor) run(ctx context.Context, userID int64, handle *loopHandle) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(userID, fmt.Errorf("monitor loop panic: %v", r))
		}
		s.finish(userID, handle)
		close(handle.done)
	}()

	slog.Info("Monitor loop running", "user_id", userID, "interval", s.interval)

	for {
		if stop := s.tick(ctx, userID); stop {
			return
		}

		select {
		case <-ctx.Done():
			slog.Info("Monitor loop cancelled", "user_id", userID)
			s.hub.Publish(events.Event{Type: events.TypeMonitorStopped, UserID: userID})
			return
		case <-time.After(s.interval):
		}
	}
}

// tick runs one poll cycle. It returns true when the loop should end:
// quota filled or a fatal error. A failed feed fetch only skips the
// cycle; the next tick retries.
func (s *Supervisor) tick(ctx context.Context, userID int64) bool {
	sess, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.fail(userID, fmt.Errorf("load session: %w", err))
		return true
	}
	if sess == nil {
		s.fail(userID, errors.New("session disappeared"))
		return true
	}
	if sess.QuotaReached() {
		s.quotaStop(userID, sess.FoundCount)
		return true
	}

	items, err := s.feed.FetchRecentItems(ctx, s.pageSize)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Feed fetch failed, skipping cycle", "user_id", userID, "error", err)
		}
		return false
	}

	for _, it := range items {
		if ctx.Err() != nil {
			return false
		}

		out, err := s.eval.Evaluate(ctx, sess, it)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.fail(userID, err)
			return true
		}
		if out.QuotaReached {
			s.quotaStop(userID, sess.FoundCount)
			return true
		}
	}
	return false
}

// quotaStop ends the loop because the quota filled. Distinct from a
// user-initiated stop: the user gets a message.
func (s *Supervisor) quotaStop(userID int64, found int) {
	slog.Info("Quota reached, stopping monitor", "user_id", userID, "found_count", found)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	text := fmt.Sprintf("🏁 Target reached: %d opportunities found. Monitoring stopped. Use /reset to start a fresh run.", found)
	if err := s.notifier.Send(ctx, userID, text); err != nil {
		slog.Warn("Quota notification failed", "user_id", userID, "error", err)
	}

	s.hub.Publish(events.Event{Type: events.TypeQuotaReached, UserID: userID,
		Detail: fmt.Sprintf("%d opportunities", found)})
}

// fail ends the loop on an unrecoverable error. Only this user's loop
// dies; the error text is surfaced to them.
func (s *Supervisor) fail(userID int64, loopErr error) {
	slog.Error("Monitor loop failed", "user_id", userID, "error", loopErr)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	text := "⚠️ Monitoring stopped due to an error: " + loopErr.Error()
	if err := s.notifier.Send(ctx, userID, text); err != nil {
		slog.Warn("Failure notification failed", "user_id", userID, "error", err)
	}

	s.hub.Publish(events.Event{Type: events.TypeMonitorError, UserID: userID, Detail: loopErr.Error()})
}

// finish clears the monitoring flag and releases the map slot. It runs
// on every exit path with its own context so a cancelled loop still
// resets the flag.
func (s *Supervisor) finish(userID int64, handle *loopHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.repo.SetMonitoring(ctx, userID, false); err != nil {
		slog.Error("Failed to clear monitoring flag", "user_id", userID, "error", err)
	}

	s.mu.Lock()
	if cur, ok := s.loops[userID]; ok && cur == handle {
		delete(s.loops, userID)
	}
	s.mu.Unlock()
}
