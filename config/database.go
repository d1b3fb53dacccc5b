package config

import (
	"strings"
	"time"
)

// DBConfig locates the PostgreSQL database holding identities and submissions.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"portal"`
	Password string `env:"PASSWORD" envDefault:"portal"`
	Name     string `env:"NAME"     envDefault:"portal"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize clamps pool settings into a usable range.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	c.SSLMode = strings.TrimSpace(c.SSLMode)
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// RedisMode names the Redis topology the portal connects to.
type RedisMode string

const (
	RedisModeDirect   RedisMode = "direct"
	RedisModeSentinel RedisMode = "sentinel"
	RedisModeCluster  RedisMode = "cluster"
)

// RedisConfig locates the Redis deployment holding sessions, login attempts,
// client storage and the session event channels.
type RedisConfig struct {
	// URI is host:port or a redis:// / rediss:// URL.
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Mode reports the configured topology; cluster wins over sentinel.
func (c RedisConfig) Mode() RedisMode {
	switch {
	case c.UseCluster:
		return RedisModeCluster
	case c.UseSentinel:
		return RedisModeSentinel
	default:
		return RedisModeDirect
	}
}
