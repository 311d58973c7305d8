package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HybieGee/Rust-Skin-Bot/internal/monitor"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

// RegisterRoutes registers every ops API route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	h.RegisterStatusRoutes(r)
	h.RegisterUserRoutes(r)
}

// RegisterStatusRoutes registers the aggregate read-only routes. These
// feed the dashboard, so they stay outside the admin token guard.
func (h *Handler) RegisterStatusRoutes(r chi.Router) {
	r.Get("/api/status", h.Status)
}

// RegisterUserRoutes registers the per-user session routes.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Route("/api/users/{userID}", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.GetSession)
		r.Put("/settings", h.UpdateSettings)
		r.Post("/monitor/start", h.StartMonitor)
		r.Post("/monitor/stop", h.StopMonitor)
		r.Post("/reset", h.ResetProgress)
		r.Get("/opportunities", h.ListOpportunities)
	})
}

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

// Status returns aggregate bot state for the dashboard.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"active_monitors": h.control.ActiveCount(),
		"known_creators":  h.novelty.Size(),
	})
}

// CreateSession creates the user's session with defaults. Idempotent.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	sess, err := h.repo.CreateSession(r.Context(), userID, h.defaults)
	if err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// GetSession returns the user's session with live monitoring state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	sess, err := h.repo.GetSession(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	screened, err := h.repo.ProcessedCount(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to count processed items", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to count processed items")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session":        sess,
		"items_screened": screened,
		"monitor_live":   h.control.IsRunning(userID),
		"has_token":      sess.HasToken(),
	})
}

type settingsRequest struct {
	AutoPurchase   *bool   `json:"autoPurchase"`
	TestMode       *bool   `json:"testMode"`
	MaxPriceCents  *int64  `json:"maxPriceCents"`
	MaxItemAgeDays *int    `json:"maxItemAgeDays"`
	SteamToken     *string `json:"steamToken"`
}

// UpdateSettings applies a partial settings update. Absent fields are
// left untouched.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxPriceCents != nil && *req.MaxPriceCents <= 0 {
		Error(w, http.StatusBadRequest, "maxPriceCents must be > 0")
		return
	}
	if req.MaxItemAgeDays != nil && (*req.MaxItemAgeDays < 1 || *req.MaxItemAgeDays > 30) {
		Error(w, http.StatusBadRequest, "maxItemAgeDays must be between 1 and 30")
		return
	}

	ctx := r.Context()
	if _, err := h.repo.CreateSession(ctx, userID, h.defaults); err != nil {
		slog.Error("Failed to ensure session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to ensure session")
		return
	}

	apply := func(err error) bool {
		if err != nil {
			slog.Error("Failed to update settings", "user_id", userID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to update settings")
			return false
		}
		return true
	}

	if req.AutoPurchase != nil && !apply(h.repo.SetAutoPurchase(ctx, userID, *req.AutoPurchase)) {
		return
	}
	if req.TestMode != nil && !apply(h.repo.SetTestMode(ctx, userID, *req.TestMode)) {
		return
	}
	if req.MaxPriceCents != nil && !apply(h.repo.SetMaxPriceCents(ctx, userID, *req.MaxPriceCents)) {
		return
	}
	if req.MaxItemAgeDays != nil && !apply(h.repo.SetMaxItemAgeDays(ctx, userID, *req.MaxItemAgeDays)) {
		return
	}
	if req.SteamToken != nil && !apply(h.repo.SetSteamToken(ctx, userID, *req.SteamToken)) {
		return
	}

	sess, err := h.repo.GetSession(ctx, userID)
	if err != nil {
		slog.Error("Failed to reload session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reload session")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// StartMonitor launches the user's monitor loop.
func (h *Handler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	err = h.control.Start(r.Context(), userID)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"status": "monitoring"})
	case errors.Is(err, monitor.ErrAlreadyMonitoring):
		Error(w, http.StatusConflict, "already_monitoring")
	case errors.Is(err, monitor.ErrQuotaExhausted):
		Error(w, http.StatusConflict, "quota_exhausted")
	case errors.Is(err, monitor.ErrTokenRequired):
		Error(w, http.StatusConflict, "token_required")
	case errors.Is(err, monitor.ErrNoSession):
		Error(w, http.StatusNotFound, "session not found")
	default:
		slog.Error("Failed to start monitoring", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to start monitoring")
	}
}

// StopMonitor stops the user's monitor loop if one is running.
func (h *Handler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"stopped": h.control.Stop(userID)})
}

// ResetProgress zeroes the found counter and clears seen items.
func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if h.control.IsRunning(userID) {
		Error(w, http.StatusConflict, "stop monitoring before resetting")
		return
	}
	if err := h.repo.ResetProgress(r.Context(), userID); err != nil {
		slog.Error("Failed to reset progress", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset progress")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ListOpportunities returns the user's most recent opportunity records.
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	recs, err := h.repo.ListOpportunities(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list opportunities", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"opportunities": recs})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
