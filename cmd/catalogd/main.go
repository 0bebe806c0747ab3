// Command catalogd serves the catalog API with rate-limited writes and cached reads.
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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nhalm/catalogkit"
	"github.com/nhalm/catalogkit/cache"
	"github.com/nhalm/catalogkit/catalog"
	"github.com/nhalm/catalogkit/internal/config"
	"github.com/nhalm/catalogkit/ratelimit"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("catalogd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, store := initBackends(ctx, cfg)
	limiter := ratelimit.New(backend, ratelimit.WithWindow(cfg.RateLimit.Window))
	defer func() {
		if err := limiter.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}()

	sessions, err := catalog.NewSessions(cfg.Admin.Email, cfg.Admin.Password,
		catalog.WithSessionTTL(cfg.Admin.SessionTTL),
	)
	if err != nil {
		return err
	}

	server := catalog.NewServer(catalog.NewRepository(), sessions, limiter, cache.NewQuerier(store),
		catalog.WithLoginLimit(cfg.RateLimit.LoginMaxAttempts),
		catalog.WithCreateLimit(cfg.RateLimit.CreateMaxRequests),
		catalog.WithArticleTTL(cfg.Cache.ArticleTTL),
		catalog.WithProductTTL(cfg.Cache.ProductTTL),
		catalog.WithMaxIndexedKeys(cfg.Cache.MaxEntries),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(catalogkit.Handler(
		catalogkit.WithCanonlog(),
		catalogkit.WithCanonlogFields(func(r *http.Request) map[string]any {
			return map[string]any{"request_id": middleware.GetReqID(r.Context())}
		}),
	))
	r.Use(catalogkit.MaxBodySize(cfg.Server.MaxBodyBytes))
	r.Get("/healthz", func(_ http.ResponseWriter, r *http.Request) {
		catalogkit.SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/", server.Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "redis", cfg.Redis.Enabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// initBackends picks Redis when it is configured and reachable at startup,
// and process-local backends otherwise. Closing the returned backend also
// closes the shared Redis client.
func initBackends(ctx context.Context, cfg config.Config) (ratelimit.Backend, cache.Store) {
	memStore := cache.NewMemory(cache.WithMaxEntries(cfg.Cache.MaxEntries))
	if !cfg.Redis.Enabled() {
		return ratelimit.NewMemory(), memStore
	}

	opts := *cfg.Redis.Options
	opts.MaxRetries = -1
	client := redis.NewClient(&opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, using in-memory backends", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return ratelimit.NewMemory(), memStore
	}

	return ratelimit.NewRedis(client, ratelimit.WithTimeout(cfg.Redis.Timeout)),
		cache.NewRedis(client, cache.WithTimeout(cfg.Redis.Timeout))
}
