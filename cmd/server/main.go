// Package main is the entry point for the minelux API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment, optional .env file)
// 2. Create dependencies (logger, storage, services)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/service, internal/store, ...).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sakif/minelux/internal/app"
	"github.com/sakif/minelux/internal/config"
	"github.com/sakif/minelux/internal/logging"
	"github.com/sakif/minelux/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text logs to stdout, plus a rotated file when LOG_FILE is set.
	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	if err != nil {
		slog.Error("invalid logging configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer logCloser.Close()

	if len(cfg.Generated) > 0 {
		logger.Warn("generated missing secrets, set them to keep them stable across restarts",
			slog.String("vars", strings.Join(cfg.Generated, ",")),
		)
		for _, name := range cfg.Generated {
			if name == "ADMIN_PASSWORD" {
				// Only meaningful the first time, when the admin is seeded.
				logger.Warn("admin password for a freshly seeded admin",
					slog.String("username", cfg.AdminUsername),
					slog.String("password", cfg.AdminPassword),
				)
			}
		}
	}

	// Ctrl+C or SIGTERM cancels ctx: during startup it aborts the initial
	// document fetch, afterwards it stops the server.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === 3. BUILD STORAGE AND SERVICES ===
	// Loads both documents before the first request is served.
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialise application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:          cfg.Port,
		JWTSecret:     cfg.JWTSecret,
		SecureCookies: cfg.SecureCookies,
	}, a, logger)
	if err != nil {
		a.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
