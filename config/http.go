package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally visible origin (e.g., "https://portal.example.com").
	// Email sign-in links and OAuth callbacks are built from it.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for the client and CSRF cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimSuffix(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h.CookieDomain), "."))
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (h *HTTPConfig) SecureCookies() bool {
	return strings.HasPrefix(h.BaseURL, "https://")
}

// CallbackURL is the absolute OAuth and email-link callback.
func (h *HTTPConfig) CallbackURL() string {
	return h.BaseURL + "/auth/callback"
}

// Validate checks the base URL and rejects cookie domains browsers would
// refuse or that would share cookies with unrelated sites (e.g. "co.uk").
func (h *HTTPConfig) Validate() error {
	u, err := url.Parse(h.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("APP_BASE_URL must be an absolute http(s) URL, got %q", h.BaseURL)
	}
	if h.CookieDomain == "" {
		return nil
	}
	suffix, _ := publicsuffix.PublicSuffix(h.CookieDomain)
	if suffix == h.CookieDomain {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", h.CookieDomain)
	}
	host := strings.ToLower(u.Hostname())
	if host != h.CookieDomain && !strings.HasSuffix(host, "."+h.CookieDomain) {
		return errors.New("APP_COOKIE_DOMAIN must match the APP_BASE_URL host or one of its parents")
	}
	return nil
}
