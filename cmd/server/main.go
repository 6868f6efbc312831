// Package main runs the forum API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgeboard/forum/internal/auth"
	"github.com/forgeboard/forum/internal/config"
	"github.com/forgeboard/forum/internal/httpapi"
	"github.com/forgeboard/forum/internal/middleware"
	"github.com/forgeboard/forum/internal/services/posts"
	"github.com/forgeboard/forum/internal/services/users"
	"github.com/forgeboard/forum/internal/storage"
	"github.com/forgeboard/forum/internal/storage/memory"
	"github.com/forgeboard/forum/internal/storage/postgres"
	"github.com/forgeboard/forum/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "server")

	userStore, postStore, commentStore, closeStore, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise storage")
	}
	defer closeStore()

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise token manager")
	}

	userSvc := users.New(userStore, tokens, log.WithField("component", "users"))
	postSvc := posts.New(postStore, commentStore, log.WithField("component", "posts"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := userSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.WithError(err).Fatal("failed to seed bootstrap admin")
	}

	opts := httpapi.Options{
		CORS: middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins),
	}
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.WithField("component", "ratelimit"))
		rl.StartCleanup(ctx, cfg.RateLimit.CleanupInterval)
		opts.RateLimiter = rl
	}

	handler := httpapi.NewHandler(userSvc, postSvc, log.WithField("component", "httpapi"))
	authMW := middleware.NewAuthMiddleware(tokens, log.WithField("component", "auth"))

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler.Router(authMW, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("forum API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return
	}
	log.Info("server stopped")
}

// buildStores selects Postgres when a database URL is configured and falls
// back to the in-memory store otherwise.
func buildStores(cfg *config.Config, log *logger.Logger) (storage.UserStore, storage.PostStore, storage.CommentStore, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set; using in-memory storage, data will not survive restarts")
		store := memory.New()
		return store, store, store, func() {}, nil
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if cfg.Database.Migrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		log.Info("database migrations applied")
	}

	store := postgres.New(db)
	return store, store, store, func() { _ = db.Close() }, nil
}
