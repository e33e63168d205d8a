// Study-abroad advisor dispatch server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/abroad-advisor/internal/api"
	"github.com/ashureev/abroad-advisor/internal/backend"
	"github.com/ashureev/abroad-advisor/internal/chat"
	"github.com/ashureev/abroad-advisor/internal/config"
	"github.com/ashureev/abroad-advisor/internal/dispatch"
	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/identity"
	"github.com/ashureev/abroad-advisor/internal/middleware"
	"github.com/ashureev/abroad-advisor/internal/store"
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

	bindings, clients, err := connectBackends(cfg.Backend, logger)
	if err != nil {
		slog.Error("Failed to connect to backends", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	dispatcher, err := dispatch.New(bindings, cfg.Budget.Budgets(), logger)
	if err != nil {
		slog.Error("Failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	convLog, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sm := chat.NewSessionManager()
	limiter := chat.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	checkers := make([]api.BackendChecker, 0, len(clients))
	for _, c := range clients {
		checkers = append(checkers, c)
	}
	baseHandler := api.NewHandler(repo, sm)
	healthHandler := api.NewHealthHandler(baseHandler, checkers, dispatcher)
	profileHandler := api.NewProfileHandler(baseHandler)
	chatHandler := chat.NewHandler(dispatcher, chat.NewStoreInitializer(repo), sm, limiter, convLog, chat.Options{
		AllowedOrigins:  cfg.AllowedOrigins(),
		MaxMessageBytes: cfg.MaxMessageBytes,
		IsDev:           cfg.IsDevelopment(),
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), identity.SessionHeaderName))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterRoutes(r)
	profileHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint.
	r.Get("/ws/chat", chatHandler.ServeHTTP)

	// Note: a recommendation can run for minutes on an open socket, so the
	// server sets no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
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

	// Hijacked sockets are not tracked by Shutdown.
	sm.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

// connectBackends dials one gRPC client per distinct backend address and binds
// every intent to its client.
func connectBackends(cfg config.BackendConfig, logger *slog.Logger) (map[domain.Intent]backend.Backend, []*backend.GrpcClient, error) {
	byAddr := make(map[string]*backend.GrpcClient)
	var clients []*backend.GrpcClient
	bindings := make(map[domain.Intent]backend.Backend, len(domain.AllIntents()))

	for _, in := range domain.AllIntents() {
		addr := cfg.AddrFor(in)
		client, ok := byAddr[addr]
		if !ok {
			clientCfg := backend.DefaultGrpcClientConfig(addr)
			if cfg.ConnectTimeout > 0 {
				clientCfg.ConnectTimeout = cfg.ConnectTimeout
			}
			slog.Info("Connecting to backend via gRPC", "intent", in, "address", addr)
			c, err := backend.NewGrpcClient(clientCfg, logger)
			if err != nil {
				for _, opened := range clients {
					opened.Close()
				}
				return nil, nil, fmt.Errorf("connect %s backend at %s: %w", in, addr, err)
			}
			byAddr[addr] = c
			clients = append(clients, c)
			client = c
		}
		bindings[in] = client
	}
	return bindings, clients, nil
}
