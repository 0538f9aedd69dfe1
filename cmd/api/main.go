// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dangerclosesec/coursehub/internal/app"
	"github.com/dangerclosesec/coursehub/internal/auth"
	"github.com/dangerclosesec/coursehub/internal/config"
	"github.com/dangerclosesec/coursehub/internal/database"
	"github.com/dangerclosesec/coursehub/internal/handler"

	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   a.Key,
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg := config.Load()

	ctx := context.Background()

	// Initialize database
	db, err := database.Open(ctx, cfg, gormlogger.Warn)
	if err != nil {
		return fmt.Errorf("setting up database: %w", err)
	}

	services, err := app.New(ctx, cfg, db, logger, app.Options{RLSReads: cfg.Supabase.RLSReads})
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer services.Close()

	tokenManager := auth.NewTokenManager(cfg.Supabase.JWTSecret, time.Hour)

	// Initialize handlers
	handlers := handler.Handlers{
		Webhook:  handler.NewWebhookHandler(services.Verifier, services.Purchases, logger),
		Checkout: handler.NewCheckoutHandler(services.Checkout, logger),
		Courses:  handler.NewCourseHandler(services.Courses, logger),
		Learner:  handler.NewLearnerHandler(services.Enrollments, services.Invitations, services.Progress, logger),
		Team:     handler.NewTeamHandler(services.Seats, services.Invitations, services.Enrollments, logger),
		Admin: handler.NewAdminHandler(handler.AdminDeps{
			Purchases: services.Purchases,
			Reconcile: services.Reconcile,
			Catalog:   services.Catalog,
			Seats:     services.Seats,
			Logs:      services.Store.Logs,
			Logger:    logger,
		}),
	}

	r := handler.NewRouter(handlers, handler.RouterConfig{
		Tokens: tokenManager,
		Logger: logger,
	})

	// Stuck purchases are swept in the background when enabled
	if cfg.Reconcile.Enabled {
		services.Reconcile.Start()
		defer services.Reconcile.Stop()
	}

	// Create server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server error channel
	serverErrors := make(chan error, 1)

	// Start server
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	// Shutdown channel
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown or error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown started", "signal", sig)

		// Give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			// If shutdown times out, forcefully close
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
