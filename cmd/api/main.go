package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsefeed/pulsefeed-backend/internal/api"
	"github.com/pulsefeed/pulsefeed-backend/internal/config"
	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/forum"
	"github.com/pulsefeed/pulsefeed-backend/internal/identity"
	"github.com/pulsefeed/pulsefeed-backend/internal/jobs"
	"github.com/pulsefeed/pulsefeed-backend/internal/log"
	"github.com/pulsefeed/pulsefeed-backend/internal/metrics"
	"github.com/pulsefeed/pulsefeed-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting PulseFeed API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"backend", cfg.Storage.Backend,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("pulsefeed-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Open the storage backend; remote backends degrade to memory
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	database, err := db.Open(ctx, db.Config{
		Backend:     cfg.Storage.Backend,
		RedisAddr:   cfg.Storage.RedisAddr,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, logger)
	cancel()
	if err != nil {
		logger.Fatalw("Failed to open storage", "error", err)
	}
	defer database.Close(context.Background())
	logger.Infow("Storage opened")

	// Build the forum core
	directory := identity.NewDirectory(database, logger)
	store := forum.NewStore(database, directory, logger)

	// Live feed hub
	hub := ws.NewHub(cfg.Security.CORSAllowedOrigins, logger, metricsObj)

	service := forum.NewService(store, hub, metricsObj, logger)

	// Hydrate up front so the first request doesn't pay for it; the
	// service still lazily initializes if this fails.
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Initialize(initCtx); err != nil {
		logger.Warnw("Initial hydration failed; will retry on first request", "error", err)
	}
	initCancel()

	// Background services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go hub.Run(bgCtx)

	flusher := jobs.NewFlusher(service, cfg.Forum.FlushInterval, logger)
	go func() {
		if err := flusher.Start(bgCtx); err != nil && err != context.Canceled {
			logger.Errorw("Flusher error", "error", err)
		}
	}()

	// Setup API handler and middleware
	handler := api.NewHandler(service, hub, cfg, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		// Flush once more so nothing written since the last tick is lost
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if report, err := service.Flush(flushCtx); err != nil {
			logger.Errorw("Final flush failed", "error", err)
		} else if !report.OK() {
			logger.Warnw("Final flush left entities unsaved", "failed", report.Failed())
		}
		flushCancel()

		logger.Infow("Server stopped")
	}
}
