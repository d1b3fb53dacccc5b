package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/reachcapital/portal/config"
	redisadapter "github.com/reachcapital/portal/internal/adapters/redis"
	"github.com/reachcapital/portal/internal/bootstrap"
	"github.com/reachcapital/portal/internal/data"
	"github.com/reachcapital/portal/internal/service"
)

// connectInfra connects Postgres and Redis, closing the database if Redis fails.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfra(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	rdb, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, rdb, nil
}

func closeInfra(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

func newIdentityRepo(db *sql.DB) *data.IdentityRepo { return data.NewIdentityRepo(db) }

func newSubmissionRepo(db *sql.DB) *data.SubmissionRepo { return data.NewSubmissionRepo(db) }

// newAuthService builds the facade without sign-in providers; admin commands
// only manage existing sessions.
func newAuthService(cfg *config.AppConfig, db *sql.DB, rdb redis.UniversalClient, logger *slog.Logger) (*service.AuthService, error) {
	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Sessions:   redisadapter.NewSessionStore(rdb),
		Attempts:   redisadapter.NewAttemptStore(rdb),
		Local:      redisadapter.NewLocalStore(rdb, cfg.Session.LocalTTL),
		Events:     redisadapter.NewEventBus(rdb, logger),
		Identities: data.NewIdentityRepo(db),
		BaseURL:    cfg.HTTP.BaseURL,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	return auth, nil
}
