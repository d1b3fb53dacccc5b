package config

import "time"

// SessionConfig controls session lifetimes and the live event stream.
type SessionConfig struct {
	// TTL is how long a session lives without a refresh.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	// AttemptTTL bounds an OAuth round trip; email attempts live as long as the link.
	AttemptTTL time.Duration `env:"LOGIN_ATTEMPT_TTL" envDefault:"10m"`
	// LinkTTL is the lifetime of an email sign-in link.
	LinkTTL time.Duration `env:"EMAIL_LINK_TTL" envDefault:"15m"`
	// LocalTTL expires per-client storage (login hints, cached submission IDs).
	LocalTTL time.Duration `env:"CLIENT_STORAGE_TTL" envDefault:"720h"`

	HeartbeatInterval time.Duration `env:"EVENTS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	RefreshInterval   time.Duration `env:"SESSION_REFRESH_INTERVAL"  envDefault:"10m"`
}

// Sanitize clamps lifetimes to usable values.
func (s *SessionConfig) Sanitize() {
	if s.TTL < time.Minute {
		s.TTL = 24 * time.Hour
	}
	if s.AttemptTTL <= 0 {
		s.AttemptTTL = 10 * time.Minute
	}
	if s.LinkTTL <= 0 {
		s.LinkTTL = 15 * time.Minute
	}
	if s.LocalTTL <= 0 {
		s.LocalTTL = 30 * 24 * time.Hour
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = 25 * time.Second
	}
	// Refreshing after expiry would never keep a session alive.
	if s.RefreshInterval <= 0 || s.RefreshInterval >= s.TTL {
		s.RefreshInterval = s.TTL / 2
	}
}
