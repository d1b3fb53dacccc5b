package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.SetLogLevel(cfg.LogLevel)
	if err = bootstrap.ValidateServeConfig(&cfg); err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	metrics := bootstrap.BuildMetrics(cfg.Observability.Metrics, logger)
	defer func() {
		if cerr := metrics.Close(); cerr != nil {
			logger.WarnContext(ctx, "close statsd failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := bootstrap.BuildHandler(&bootstrap.HTTPServerConfig{
		Config:      &cfg,
		Services:    services,
		DB:          db,
		RedisClient: redisClient,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := bootstrap.NewHTTPServer(cfg.HTTP.Addr, handler, cfg.HTTP)
	return bootstrap.Serve(ctx, srv, cfg.HTTP.ShutdownTimeout, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting reach capital portal",
		"base_url", cfg.HTTP.BaseURL,
		"auth_mode", cfg.Auth.Mode,
		"email_links", cfg.EmailLinksEnabled(),
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"dev", cfg.IsDev)
}

// initInfrastructure connects shared dependencies used by the portal.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect redis: %w", errors.Join(err, fmt.Errorf("close database: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return db, redisClient, nil
}
