package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/adapters/devauth"
	"github.com/reachcapital/portal/internal/adapters/magiclink"
	"github.com/reachcapital/portal/internal/adapters/mailer"
	"github.com/reachcapital/portal/internal/adapters/oidc"
	"github.com/reachcapital/portal/internal/ports"
)

// DevProviderName is the provider key the mock sign-in is offered under.
const DevProviderName = "dev"

// BuildOAuthProviders returns the external sign-in providers for the configured
// auth mode, keyed by the name used in /auth/login/oauth?provider=.
func BuildOAuthProviders(cfg *config.AppConfig, logger *slog.Logger) (map[string]ports.OAuthProvider, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			Subject: cfg.Auth.DevAuth.Subject,
			Email:   cfg.Auth.DevAuth.Email,
			Role:    cfg.Auth.DevAuth.Role,
		})
		if err != nil {
			return nil, fmt.Errorf("dev auth provider: %w", err)
		}
		if logger != nil {
			logger.Warn("dev sign-in enabled; do not use in production", "email", cfg.Auth.DevAuth.Email)
		}
		return map[string]ports.OAuthProvider{DevProviderName: prov}, nil

	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		redirectURL := oauth.RedirectURL
		if redirectURL == "" {
			redirectURL = cfg.HTTP.CallbackURL()
		}
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  redirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			RoleClaim:    oauth.RoleClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc provider %q: %w", oauth.Name, err)
		}
		return map[string]ports.OAuthProvider{oauth.Name: prov}, nil

	default:
		return map[string]ports.OAuthProvider{}, nil
	}
}

// BuildEmailLinks returns the signer and mailer for magic-link sign-in, or
// nils when email links are off. Without a relay in dev mode links are logged.
//
//nolint:ireturn // the mailer is SMTP or the dev logger depending on config.
func BuildEmailLinks(cfg *config.AppConfig, logger *slog.Logger) (ports.LinkSigner, ports.Mailer, error) {
	if cfg == nil || !cfg.EmailLinksEnabled() {
		return nil, nil, nil
	}
	signer, err := magiclink.NewSigner(cfg.Auth.LinkSecret, cfg.Auth.LinkIssuer)
	if err != nil {
		return nil, nil, fmt.Errorf("link signer: %w", err)
	}

	if !cfg.Mail.Enabled() {
		if logger != nil {
			logger.Warn("no SMTP relay configured; sign-in links will be logged")
		}
		return signer, mailer.Log{Logger: logger}, nil
	}
	smtp, err := mailer.NewSMTP(mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Subject:  cfg.Mail.Subject,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return signer, smtp, nil
}
