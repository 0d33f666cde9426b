// agentdesk - real-time agent chat server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/auth"
	"github.com/ashureev/agentdesk/internal/chat"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/middleware"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/tools"
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

	authz := auth.NewStoreAuthorizer(repo)

	prov, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
	})
	if err != nil {
		slog.Error("Failed to initialize generation provider", "error", err)
		os.Exit(1)
	}
	slog.Info("Generation provider ready", "model", cfg.Provider.Model)

	dispatcher := tools.NewDispatcher()
	if cfg.Tools.TavilyAPIKey != "" {
		dispatcher.Register(tools.NewSearchTool(cfg.Tools.TavilyAPIKey))
		slog.Info("Search tool registered")
	}
	if cfg.Tools.TwilioAccountSID != "" && cfg.Tools.TwilioAuthToken != "" && cfg.Tools.TwilioPhoneNumber != "" {
		dispatcher.Register(tools.NewSMSTool(cfg.Tools.TwilioAccountSID, cfg.Tools.TwilioAuthToken, cfg.Tools.TwilioPhoneNumber))
		slog.Info("SMS tool registered")
	}

	transcript, err := chat.NewTranscriptLogger(cfg.TranscriptLog, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	if transcript != nil {
		defer func() {
			if closeErr := transcript.Close(); closeErr != nil {
				slog.Error("Failed to close transcript logger", "error", closeErr)
			}
		}()
	}

	// Initialize the chat engine.
	emitter := chat.NewEmitter(logger)
	registry := chat.NewRegistry(repo, authz, logger)
	scheduler := chat.NewScheduler(registry, repo, prov, dispatcher, emitter, transcript, cfg.ResponseTimeout, logger)
	limiter := chat.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, authz)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := chat.NewWebSocketHandler(registry, scheduler, emitter, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Streaming responses over long-lived connections need no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
