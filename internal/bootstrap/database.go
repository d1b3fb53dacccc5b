package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/data"
)

const connectTimeout = 5 * time.Second

// postgresDSN builds the DSN with url.URL so credentials with special characters survive.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB establishes a connection to the PostgreSQL database holding
// identities and student submissions.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database connected",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
		)
	}

	return db, nil
}

// ConnectRedis establishes a connection to the Redis deployment that holds
// sessions, login attempts, client storage and the live event channels.
//
//nolint:ireturn // the topology decides between single, failover and cluster clients.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis %s: %w", desc, pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "mode", cfg.Mode(), "addr", desc)
	}
	return client, nil
}

// redisOptions maps the config onto UniversalOptions. NewUniversalClient
// builds a failover client when MasterName is set, a cluster client when
// IsClusterMode is set, and a plain client otherwise. desc is safe to log.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password, DB: cfg.DB}

	switch cfg.Mode() {
	case config.RedisModeSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		if cfg.SentinelMasterName == "" {
			return nil, "", errors.New("redis sentinel configuration requires a master name")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel:" + cfg.SentinelMasterName, nil

	case config.RedisModeCluster:
		opts.IsClusterMode = true
		opts.DB = 0
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			if err := applyURI(opts, cfg.URI); err != nil {
				return nil, "", err
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil

	default:
		if strings.TrimSpace(cfg.URI) == "" {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		if err := applyURI(opts, cfg.URI); err != nil {
			return nil, "", err
		}
		return opts, opts.Addrs[0], nil
	}
}

// applyURI fills address, credentials, DB and TLS from a host:port or redis URL.
// Values embedded in a URL override the separately configured ones.
func applyURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if parsed.DB != 0 {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// RunMigrations applies the embedded identity and submission schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}

	return nil
}
