// Package server owns the HTTP surface: the chi router, the middleware
// stack and the listener lifecycle.
//
// The storage stack and services are built by internal/app and handed in,
// so the server never opens a database or talks to GitHub itself.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/minelux/internal/app"
	"github.com/sakif/minelux/internal/auth"
	"github.com/sakif/minelux/internal/handler"
	"github.com/sakif/minelux/internal/metrics"
	"github.com/sakif/minelux/internal/middleware"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Port          int
	JWTSecret     string
	SecureCookies bool
}

// Server serves the API for one App. It takes ownership of the App and
// closes it when Run returns.
type Server struct {
	router *chi.Mux
	config Config
	app    *app.App
	tokens *auth.TokenService
	logger *slog.Logger
}

// New creates a Server around an already built App.
func New(cfg Config, a *app.App, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		app:    a,
		tokens: tokens,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers the middleware stack and every route.
//
//	public   /healthz /metrics /auth/{register,login,logout}
//	         GET /api/mods, /api/mods/facets, /api/mods/{id}, /api/stats
//	auth     GET /api/me, PUT /api/me/image
//	admin    POST /api/mods, DELETE /api/mods/{id}, POST /api/mods/reload,
//	         GET|POST /api/users, DELETE /api/users/{username}
//
// RequestID and RealIP run first so the Logger line carries the request ID
// and the client address.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Middleware)

	authHandler := handler.NewAuthHandler(s.app.Users, s.tokens, s.config.SecureCookies, s.logger)
	modHandler := handler.NewModHandler(s.app.Mods, s.app.Users, s.logger)
	userHandler := handler.NewUserHandler(s.app.Users, s.logger)

	requireAuth := auth.RequireAuth(s.tokens)
	requireAdmin := auth.RequireAdmin(s.app.Users)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Public
		r.Get("/mods", modHandler.HandleList)
		r.Get("/mods/facets", modHandler.HandleFacets)
		r.Get("/mods/{id}", modHandler.HandleGet)
		r.Get("/stats", modHandler.HandleStats)

		// Logged in
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)
			r.Put("/me/image", authHandler.HandleUpdateImage)
		})

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)
			r.Post("/mods", modHandler.HandleCreate)
			r.Delete("/mods/{id}", modHandler.HandleDelete)
			r.Post("/mods/reload", modHandler.HandleReload)
			r.Get("/users", userHandler.HandleList)
			r.Post("/users", userHandler.HandleCreate)
			r.Delete("/users/{username}", userHandler.HandleDelete)
		})
	})
}

// handleHealth reports whether the local store answers. The remote is not
// checked: the service keeps working without it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.app.DB.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes the App. A listener failure is returned straight away.
func (s *Server) Run(ctx context.Context) error {
	defer s.app.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // commits to GitHub can take a while
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", slog.String("cause", context.Cause(ctx).Error()))

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: graceful shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
