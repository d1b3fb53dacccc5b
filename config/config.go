package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Sign-in providers and email links
//   - database.go: PostgreSQL and Redis
//   - http.go: HTTP server and cookies
//   - session.go: Session, attempt and live-stream lifetimes
//   - mail.go: SMTP relay for sign-in links
type AppConfig struct {
	// IsDev controls development mode behavior (templates from disk, dev auth allowed).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel accepts slog level names (DEBUG, INFO, WARN, ERROR).
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP    HTTPConfig
	Session SessionConfig
	Mail    MailConfig `envPrefix:"SMTP_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.Session.Sanitize()
	c.Mail.Sanitize()
	c.Auth.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// Validate reports settings that would leave the portal unable to sign anyone in.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Auth.Validate(c.IsDev); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.LinkSecret != "" && !c.Mail.Enabled() && !c.IsDev {
		errs = append(errs, errors.New("AUTH_LINK_SECRET is set but SMTP_HOST and SMTP_FROM are not"))
	}
	if !c.EmailLinksEnabled() && c.Auth.Mode == AuthModeNone {
		errs = append(errs, errors.New("no sign-in method configured: set AUTH_MODE or AUTH_LINK_SECRET with SMTP"))
	}
	return errors.Join(errs...)
}

// EmailLinksEnabled reports whether magic-link sign-in can be offered.
// In dev mode links are logged when no relay is configured.
func (c *AppConfig) EmailLinksEnabled() bool {
	return c.Auth.LinkSecret != "" && (c.Mail.Enabled() || c.IsDev)
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
