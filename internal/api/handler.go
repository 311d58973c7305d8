// Package api provides HTTP handlers for the skin bot ops API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/creators"
	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// MonitorControl is the slice of the supervisor the API drives.
type MonitorControl interface {
	Start(ctx context.Context, userID int64) error
	Stop(userID int64) bool
	IsRunning(userID int64) bool
	ActiveCount() int
}

// Handler provides common handler utilities and dependencies.
type Handler struct {
	repo      store.Repository
	control   MonitorControl
	novelty   *creators.Service
	defaults  domain.SessionDefaults
	startedAt time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, control MonitorControl, novelty *creators.Service, defaults domain.SessionDefaults) *Handler {
	return &Handler{
		repo:      repo,
		control:   control,
		novelty:   novelty,
		defaults:  defaults,
		startedAt: time.Now(),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
