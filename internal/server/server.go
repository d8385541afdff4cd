// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: configuration comes in from main, and New
// wires the SQLite log, the hosting client factory, the services, the handlers
// and the route guard in one place.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/handler"
	"github.com/sakif/portfolio-admin/internal/hosting"
	"github.com/sakif/portfolio-admin/internal/middleware"
	"github.com/sakif/portfolio-admin/internal/model"
	sqliteRepo "github.com/sakif/portfolio-admin/internal/repository/sqlite"
	"github.com/sakif/portfolio-admin/internal/service"
)

// Server represents the HTTP server and all its dependencies. It owns the
// database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires every route.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
//	GET  /healthz, /metrics
//	GET  /admin/login                 → login page
//	GET  /admin, /admin/*             → dashboard (guarded)
//	GET  /images/*                    → preview copies (development only)
//	GET  /auth/github/login, /auth/github/callback
//	POST /auth/logout
//	GET  /api/session                 → RequireSession
//	POST /api/admin/verify-access, upload, create-pr, cleanup
//	GET  /api/admin/publications      → RequireSession
//
// Middleware order: RequestID, RealIP, Recoverer, then request logging.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === Identity ===
	tokens, err := auth.NewTokenService(s.config.AuthSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sessions := auth.NewSessions(tokens, s.config.Mode.IsProduction())

	factory, err := hosting.NewFactory(hosting.Options{
		APIURL:  s.config.GitHub.APIURL,
		Timeout: s.config.GitHub.Timeout,
		Logger:  s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating hosting client factory: %w", err)
	}
	clients := func(ctx context.Context, token string) service.RepoClient {
		return factory.ForToken(ctx, token)
	}

	// === Services ===
	//   s.db → PublicationRepository, OperatorRepository
	//   clients → every GitHub call, scoped to the caller's token
	repo := s.config.Repository
	verifier := service.NewAccessVerifier(clients, repo, s.logger)
	publisher := service.NewPublisher(clients, repo, s.db, s.logger)
	stager := service.NewUploadStager(s.config.Mode, s.config.PreviewDir, s.logger)
	cleaner := service.NewCleaner(s.config.Mode, s.config.PreviewDir, s.logger)
	publications := service.NewPublicationService(s.db, s.logger)
	authService := service.NewAuthService(s.db, tokens, clients, s.logger)

	// === Handlers ===
	github := auth.NewGitHubProvider(
		s.config.GitHub.ClientID,
		s.config.GitHub.ClientSecret,
		s.config.GitHub.CallbackURL,
	)
	authHandler := handler.NewAuthHandler(github, authService, sessions, s.logger)
	adminHandler := handler.NewAdminHandler(handler.AdminServices{
		Verifier:     verifier,
		Publisher:    publisher,
		Stager:       stager,
		Cleaner:      cleaner,
		Publications: publications,
	}, s.logger)
	pagesHandler, err := handler.NewPagesHandler(s.config.Mode, operatorLogin(sessions), publications, s.logger)
	if err != nil {
		return fmt.Errorf("creating pages handler: %w", err)
	}
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// The guard asks the verifier afresh on every page load.
	guard, err := middleware.NewGuard(s.config.Mode, sessions,
		middleware.CheckerFunc(func(ctx context.Context, token string) (model.AccessDecision, error) {
			return verifier.Verify(ctx, token), ctx.Err()
		}),
		s.logger,
	)
	if err != nil {
		return fmt.Errorf("creating route guard: %w", err)
	}

	// === Operations ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === Pages ===
	s.router.Get(middleware.LoginPath, pagesHandler.HandleLogin)
	s.router.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Get("/admin", pagesHandler.HandleDashboard)
		r.Get("/admin/*", pagesHandler.HandleDashboard)
	})

	if !s.config.Mode.IsProduction() {
		images := http.FileServer(http.Dir(filepath.Join(s.config.PreviewDir, "images")))
		s.router.Handle("/images/*", http.StripPrefix("/images/", images))
	}

	// === Auth ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.With(auth.RequireSession(sessions)).Get("/session", authHandler.HandleSession)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.OptionalSession(sessions))
			r.Post("/verify-access", adminHandler.HandleVerifyAccess)
			r.Post("/upload", adminHandler.HandleUpload)
			r.Post("/create-pr", adminHandler.HandleCreatePR)
			r.Post("/cleanup", adminHandler.HandleCleanup)
			r.With(auth.RequireSession(sessions)).Get("/publications", adminHandler.HandleListPublications)
		})
	})

	return nil
}

// operatorLogin reads the session cookie for the page header.
func operatorLogin(sessions *auth.Sessions) handler.OperatorLookup {
	return func(r *http.Request) string {
		sess, err := sessions.FromRequest(r)
		if err != nil {
			return ""
		}
		return sess.Login
	}
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up to
// 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // publishing makes many sequential API calls
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("mode", s.config.Mode.String()),
			slog.String("repository", s.config.Repository.FullName()),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
