// Rust Skin Sniper - first-time creator skin monitor
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/api"
	"github.com/HybieGee/Rust-Skin-Bot/internal/config"
	"github.com/HybieGee/Rust-Skin-Bot/internal/creators"
	"github.com/HybieGee/Rust-Skin-Bot/internal/events"
	"github.com/HybieGee/Rust-Skin-Bot/internal/market"
	"github.com/HybieGee/Rust-Skin-Bot/internal/middleware"
	"github.com/HybieGee/Rust-Skin-Bot/internal/monitor"
	"github.com/HybieGee/Rust-Skin-Bot/internal/notify"
	"github.com/HybieGee/Rust-Skin-Bot/internal/purchase"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
	"github.com/HybieGee/Rust-Skin-Bot/internal/telegram"
	"github.com/HybieGee/Rust-Skin-Bot/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Monitoring flags from a previous process are stale: no loop is
	// running for them anymore.
	cleared, err := repo.ResetAllMonitoring(context.Background())
	if err != nil {
		slog.Error("Failed to clear stale monitoring flags", "error", err)
		os.Exit(1)
	}
	if cleared > 0 {
		slog.Info("Cleared stale monitoring flags", "sessions", cleared)
	}

	// Initialize services.
	marketClient := market.NewClient(cfg.MarketAPIURL)

	novelty := creators.NewService(repo, marketClient)
	if err := novelty.Load(context.Background()); err != nil {
		slog.Error("Failed to load known creators", "error", err)
		os.Exit(1)
	}
	slog.Info("Known creators loaded", "count", novelty.Size())

	var live purchase.Purchaser
	switch cfg.PurchaseDrv {
	case config.DriverBrowser:
		live = purchase.NewBrowserBuyer(cfg.BrowserHeadless)
	default:
		live = purchase.NewSteamOrderClient(cfg.SteamBaseURL)
	}
	sim := purchase.NewSimulator(cfg.SimSuccess)
	slog.Info("Purchase drivers ready", "live_driver", cfg.PurchaseDrv)

	var tgClient *telegram.Client
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramBotToken != "" {
		tgClient = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIURL)
		notifier = tgClient
	}

	hub := events.NewHub(64)

	eval := monitor.NewEvaluator(repo, novelty, live, sim, notifier, hub)
	supervisor := monitor.NewSupervisor(repo, marketClient, eval, notifier, hub, cfg.PollInterval, cfg.FeedPageSize)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, supervisor, novelty, cfg.Defaults)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := events.NewWSHandler(hub, cfg.AllowedOrigin, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigin))

	// Public routes.
	healthHandler.RegisterHealth(r)
	baseHandler.RegisterStatusRoutes(r)

	// Per-user ops API, token-protected when ADMIN_TOKEN is set.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.AdminToken))
		baseHandler.RegisterUserRoutes(r)
	})

	// WebSocket event stream.
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Serve embedded dashboard (SPA catch-all).
	r.Handle("/*", web.DashboardHandler())

	// Create server.
	// Note: WebSocket event streams stay open indefinitely (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start Telegram bot.
	if tgClient != nil {
		bot := telegram.NewBot(tgClient, repo, supervisor, cfg.Defaults)
		go bot.Run(ctx)
		slog.Info("Telegram bot started")
	} else {
		slog.Info("Telegram bot disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		slog.Error("Monitor loops did not drain in time", "error", err)
	}

	slog.Info("Server stopped successfully")
}
