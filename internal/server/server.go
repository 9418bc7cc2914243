// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: config comes in, and New builds the store,
// avatar storage, identity providers, services and handlers, then mounts
// them on one chi router.
//
//	config.Config → sqlite.DB ──────────────┐
//	             → AvatarStore (local|minio) ├→ AuthService → UserHandler
//	             → IdentityProviders ────────┘
//	               sqlite.DB → JamService → JamHandler
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/config"
	"github.com/sakif/jamspace/internal/handler"
	"github.com/sakif/jamspace/internal/middleware"
	sqliteRepo "github.com/sakif/jamspace/internal/repository/sqlite"
	"github.com/sakif/jamspace/internal/service"
	"github.com/sakif/jamspace/internal/storage"
	"github.com/sakif/jamspace/internal/telemetry"
)

// Server represents the HTTP server and all its dependencies.
// It owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	media  http.Handler // nil when avatars live in MinIO
}

// New wires every dependency. Nothing listens until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	telemetry.Init()

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

	avatars, err := s.avatarStore()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up avatar storage: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s.setupRoutes(avatars, tokens)
	return s, nil
}

// avatarStore picks MinIO when configured, else the local media directory
// served under /media/.
func (s *Server) avatarStore() (storage.AvatarStore, error) {
	if !s.config.UseMinio() {
		local, err := storage.NewLocalStore(s.config.MediaDir, s.config.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		s.media = local.Handler()
		return local, nil
	}

	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  s.config.MinioEndpoint,
		AccessKey: s.config.MinioAccessKey,
		SecretKey: s.config.MinioSecretKey,
		Bucket:    s.config.MinioBucket,
		UseSSL:    s.config.MinioUseSSL,
		PublicURL: s.config.MinioPublicURL,
		Region:    s.config.MinioRegion,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("avatar storage: minio",
		slog.String("endpoint", s.config.MinioEndpoint),
		slog.String("bucket", s.config.MinioBucket),
	)
	return store, nil
}

func (s *Server) providers(passwords *auth.PasswordService) []auth.IdentityProvider {
	google := auth.GoogleConfig{
		ClientID:     s.config.GoogleClientID,
		ClientSecret: s.config.GoogleClientSecret,
		TokenURL:     s.config.GoogleTokenURL,
		UserInfoURL:  s.config.GoogleUserInfoURL,
		Timeout:      s.config.ProviderTimeout,
	}
	if google.ClientID == "" {
		s.logger.Warn("GOOGLE_CLIENT_ID not set; google-code login will fail at the code exchange")
	}

	return []auth.IdentityProvider{
		auth.NewPasswordProvider(s.db.Accounts(), passwords),
		auth.NewGoogleProvider(google),
		auth.NewGoogleCodeProvider(google),
		auth.NewFacebookProvider(s.config.FacebookGraphURL, s.config.ProviderTimeout),
	}
}

// setupRoutes configures all middleware and route handlers.
//
// Middleware runs in the order added: request id, real ip, logging, metrics,
// panic recovery, trailing-slash stripping, CORS. Recoverer sits inside the
// logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes(avatars storage.AvatarStore, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	passwords := auth.NewPasswordService()
	accounts := s.db.Accounts()

	authService := service.NewAuthService(
		accounts,
		service.NewReconciler(accounts, s.logger),
		tokens,
		passwords,
		avatars,
		s.logger,
		s.providers(passwords)...,
	)
	jamService := service.NewJamService(s.db.Jams(), s.db.Participations(), s.db.Messages(), s.logger)

	users := handler.NewUserHandler(authService, s.logger)
	jams := handler.NewJamHandler(jamService, s.logger)
	requireAuth := auth.RequireAuth(tokens)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	if s.media != nil {
		s.router.Handle(storage.MediaPrefix+"*", s.media)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", users.HandleRegister)
			r.Post("/login", users.HandleLogin(auth.ProviderPassword))
			r.Post("/token/refresh", users.HandleRefresh)
			r.Post("/google", users.HandleLogin(auth.ProviderGoogle))
			r.Post("/google-code", users.HandleLogin(auth.ProviderGoogleCode))
			r.Post("/facebook", users.HandleLogin(auth.ProviderFacebook))

			r.With(requireAuth).Get("/me", users.HandleMe)
			r.With(requireAuth).Patch("/me", users.HandleUpdateMe)
		})

		r.Route("/jams", func(r chi.Router) {
			r.Get("/", jams.HandleList)
			r.With(requireAuth).Post("/", jams.HandleCreate)
			r.With(requireAuth).Get("/mine", jams.HandleMine)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jams.HandleGet)
				r.Get("/participants", jams.HandleParticipants)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Delete("/", jams.HandleDelete)
					r.Delete("/leave", jams.HandleLeave)
					r.Get("/messages", jams.HandleMessages)
					r.Post("/messages", jams.HandlePostMessage)
				})
			})
		})

		r.With(requireAuth).Post("/join", jams.HandleJoin)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start listens on the configured port and blocks until SIGINT/SIGTERM, then
// drains in-flight requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // avatar uploads
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicBaseURL),
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
