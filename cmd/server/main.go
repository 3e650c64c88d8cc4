/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the procurement engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Open the store (PostgreSQL when DATABASE_URL is set, SQLite otherwise)
  3. Connect the follow-up cache (Redis when REDIS_ADDR is set)
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database connections
  4. Exit

ENVIRONMENT:
  PORT, DATABASE_URL, SQLITE_PATH, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
  FOLLOWUP_CACHE_TTL_SECONDS, ALLOWED_ORIGIN, LOG_LEVEL. See config.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite, store/postgres: Database implementations
*/
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/procurement-engine/api"
	"github.com/warp/procurement-engine/cache"
	"github.com/warp/procurement-engine/config"
	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/store/postgres"
	"github.com/warp/procurement-engine/store/sqlite"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	followUps, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect cache")
	}
	defer closeCache()

	handler := api.NewHandler(store, followUps, log)
	router := api.NewRouter(handler, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("procurement engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

// openStore picks PostgreSQL when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context, cfg config.Config) (procurement.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
	s, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}
	return s, func() { s.Close() }, nil
}

// openCache connects Redis when configured, else a no-op cache.
func openCache(ctx context.Context, cfg config.Config, log zerolog.Logger) (cache.FollowUpCache, func(), error) {
	if cfg.RedisAddr == "" {
		return cache.Noop{}, func() {}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.FollowUpCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("follow-up cache connected")
	return r, func() { r.Close() }, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if os.Getenv("LOG_PRETTY") != "" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
