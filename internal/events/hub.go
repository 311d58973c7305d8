// Package events fans monitor activity out to live subscribers and keeps
// a bounded replay history so late-joining dashboards see recent activity.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types published by the monitor.
const (
	TypeOpportunity    = "opportunity"
	TypeMonitorStarted = "monitor_started"
	TypeMonitorStopped = "monitor_stopped"
	TypeQuotaReached   = "quota_reached"
	TypeMonitorError   = "monitor_error"
)

// Event is one monitor activity record.
type Event struct {
	Type        string    `json:"type"`
	UserID      int64     `json:"userId"`
	ItemID      int64     `json:"itemId,omitempty"`
	ItemName    string    `json:"itemName,omitempty"`
	CreatorName string    `json:"creatorName,omitempty"`
	PriceCents  int64     `json:"priceCents,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

const subscriberBuffer = 16

// Hub distributes events to subscribers. Delivery is best-effort: a
// subscriber that stops draining its channel loses events rather than
// stalling the monitor loops.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	recent []Event
	next   int
	full   bool
}

// NewHub creates a hub keeping the last historySize events for replay.
// Default size is 64 which covers a dashboard reconnect window.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 64
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		recent: make([]Event, historySize),
	}
}

// Publish records the event and hands it to every subscriber without
// blocking. A zero At is stamped with the current time.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent[h.next] = e
	h.next = (h.next + 1) % len(h.recent)
	if h.next == 0 {
		h.full = true
	}

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("Event dropped for slow subscriber", "type", e.Type, "user_id", e.UserID)
		}
	}
}

// Subscribe registers a new listener. The returned cancel func must be
// called to release the channel; after cancel the channel is closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// History returns the retained events in chronological order.
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full && h.next == 0 {
		return nil
	}

	if !h.full {
		out := make([]Event, h.next)
		copy(out, h.recent[:h.next])
		return out
	}

	// Wrap-around: oldest entries sit from next to end.
	out := make([]Event, 0, len(h.recent))
	out = append(out, h.recent[h.next:]...)
	out = append(out, h.recent[:h.next]...)
	return out
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
