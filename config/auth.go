package config

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMode represents the external sign-in method offered next to email links.
type AuthMode string

const (
	// AuthModeOAuth uses an OIDC provider.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses the dev provider that signs in a configured identity.
	AuthModeMock AuthMode = "mock"
	// AuthModeNone offers email links only.
	AuthModeNone AuthMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock", "none":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock, none)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	// Name is the provider key used in /auth/login/oauth?provider=.
	Name         string `env:"PROVIDER"      envDefault:"google"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL" envDefault:"https://accounts.google.com"`
	// RoleClaim is a JMESPath expression over the id_token claims that yields a role.
	RoleClaim string `env:"ROLE_CLAIM"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Subject string `env:"SUBJECT"`
	Email   string `env:"EMAIL"   envDefault:"dev@example.com"`
	// Role is copied into identity metadata when set; otherwise the login hint decides.
	Role string `env:"ROLE"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// LinkSecret signs email sign-in links (HS256). Email links are off when empty.
	LinkSecret string `env:"AUTH_LINK_SECRET"`
	LinkIssuer string `env:"AUTH_LINK_ISSUER" envDefault:"reach-portal"`
}

// Sanitize trims provider settings.
func (a *AuthConfig) Sanitize() {
	a.OAuth.Name = strings.ToLower(strings.TrimSpace(a.OAuth.Name))
	if a.OAuth.Name == "" {
		a.OAuth.Name = "google"
	}
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
	a.OAuth.RoleClaim = strings.TrimSpace(a.OAuth.RoleClaim)
	a.LinkIssuer = strings.TrimSpace(a.LinkIssuer)
}

// Validate checks the settings the selected mode depends on.
func (a *AuthConfig) Validate(isDev bool) error {
	var errs []error
	switch a.Mode {
	case AuthModeOAuth:
		if a.OAuth.ClientID == "" || a.OAuth.ClientSecret == "" {
			errs = append(errs, errors.New("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required when AUTH_MODE=oauth"))
		}
		if a.OAuth.DiscoveryURL == "" {
			errs = append(errs, errors.New("OAUTH_DISCOVERY_URL is required when AUTH_MODE=oauth"))
		}
	case AuthModeMock:
		if !isDev {
			errs = append(errs, errors.New("AUTH_MODE=mock is only allowed with DEV=true"))
		}
	}
	if a.LinkSecret != "" && len(a.LinkSecret) < minLinkSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_LINK_SECRET must be at least %d bytes", minLinkSecretLength))
	}
	return errors.Join(errs...)
}

const minLinkSecretLength = 32
