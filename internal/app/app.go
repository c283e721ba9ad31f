package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	api "github.com/vadimbarashkov/shortlink/internal/api/http"
	"github.com/vadimbarashkov/shortlink/internal/cache/memory"
	rediscache "github.com/vadimbarashkov/shortlink/internal/cache/redis"
	"github.com/vadimbarashkov/shortlink/internal/config"
	pgrepo "github.com/vadimbarashkov/shortlink/internal/database/postgres"
	"github.com/vadimbarashkov/shortlink/internal/service"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
)

// Run wires the application together and blocks until ctx is canceled or a
// component fails: database pool, migrations, cache tiers, the link service
// and the HTTP server, plus the periodic pruning loop when configured.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("shortlink", httplog.Options{
		JSON:     cfg.Env == config.EnvProd,
		LogLevel: slog.LevelInfo,
		Concise:  cfg.Env != config.EnvProd,
	})

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	repo := pgrepo.NewLinkRepository(db)

	// Resume at the escalated length if a previous process grew it.
	shortIDLength := cfg.ShortIDLength
	if stored, ok, err := repo.ShortIDLength(ctx); err != nil {
		return fmt.Errorf("%s: failed to read short id length: %w", op, err)
	} else if ok && stored > shortIDLength {
		shortIDLength = stored
	}

	var caches []service.Cache

	var localCache *memory.Cache
	if cfg.LocalCache.Enabled {
		localCache, err = memory.New(cfg.LocalCache.MaxItems, memory.WithTTL(cfg.LocalCache.TTL))
		if err != nil {
			return fmt.Errorf("%s: failed to create local cache: %w", op, err)
		}
		defer localCache.Close()

		caches = append(caches, localCache)
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		caches = append(caches, rediscache.New(redisClient, rediscache.WithTTL(cfg.Redis.TTL)))
	}

	linkSvc, err := service.New(
		ctx,
		repo,
		service.WithCaches(caches...),
		service.WithShortIDLength(shortIDLength),
		service.WithCreateAttempts(cfg.CreateAttempts),
		service.WithUpdateLastAccessOnGet(cfg.UpdateLastAccessOnGet),
		service.WithLogger(logger.Logger),
		service.WithOnShortIDLengthUpdate(func(newLength int) {
			if err := repo.SaveShortIDLength(ctx, newLength); err != nil {
				logger.Error(
					"failed to persist short id length",
					slog.Int("new_length", newLength),
					slog.Any("err", err),
				)
				return
			}

			logger.Info("short id length escalated", slog.Int("new_length", newLength))
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to create link service: %w", op, err)
	}

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, linkSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	if cfg.Cleanup.Enabled {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Cleanup.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					deleted, err := linkSvc.CleanUnusedLinks(ctx, cfg.Cleanup.MaxAgeDays)
					if err != nil {
						logger.Error("failed to clean unused links", slog.Any("err", err))
						continue
					}

					logger.Info("cleaned unused links", slog.Int("deleted_count", len(deleted)))
				}
			}
		})
	}

	return g.Wait()
}
