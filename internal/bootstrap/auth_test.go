package bootstrap

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/adapters/devauth"
	"github.com/reachcapital/portal/internal/adapters/mailer"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildOAuthProviders(t *testing.T) {
	t.Run("mock mode offers the dev provider", func(t *testing.T) {
		cfg := &config.AppConfig{IsDev: true, Auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{Email: "dev@example.com", Role: "business"},
		}}
		providers, err := BuildOAuthProviders(cfg, discardLogger())
		require.NoError(t, err)
		require.Len(t, providers, 1)
		assert.IsType(t, &devauth.Provider{}, providers[DevProviderName])
	})

	t.Run("mock mode rejects an unknown role", func(t *testing.T) {
		cfg := &config.AppConfig{Auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{Email: "dev@example.com", Role: "owner"},
		}}
		_, err := BuildOAuthProviders(cfg, discardLogger())
		assert.ErrorContains(t, err, "dev auth provider")
	})

	t.Run("none mode offers nothing", func(t *testing.T) {
		cfg := &config.AppConfig{Auth: config.AuthConfig{Mode: config.AuthModeNone}}
		providers, err := BuildOAuthProviders(cfg, discardLogger())
		require.NoError(t, err)
		assert.Empty(t, providers)
	})

	t.Run("oauth mode surfaces provider errors", func(t *testing.T) {
		cfg := &config.AppConfig{Auth: config.AuthConfig{
			Mode:  config.AuthModeOAuth,
			OAuth: config.OAuthConfig{Name: "google", ClientSecret: "s", DiscoveryURL: "https://issuer.invalid"},
		}}
		_, err := BuildOAuthProviders(cfg, discardLogger())
		assert.ErrorContains(t, err, `oidc provider "google"`)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := BuildOAuthProviders(nil, discardLogger())
		assert.Error(t, err)
	})
}

func TestBuildEmailLinks(t *testing.T) {
	secret := strings.Repeat("k", 32)

	t.Run("disabled without a secret", func(t *testing.T) {
		signer, mail, err := BuildEmailLinks(&config.AppConfig{}, discardLogger())
		require.NoError(t, err)
		assert.Nil(t, signer)
		assert.Nil(t, mail)
	})

	t.Run("dev mode logs links without a relay", func(t *testing.T) {
		cfg := &config.AppConfig{IsDev: true, Auth: config.AuthConfig{LinkSecret: secret}}
		signer, mail, err := BuildEmailLinks(cfg, discardLogger())
		require.NoError(t, err)
		assert.NotNil(t, signer)
		assert.IsType(t, mailer.Log{}, mail)
	})

	t.Run("smtp relay", func(t *testing.T) {
		cfg := &config.AppConfig{
			Auth: config.AuthConfig{LinkSecret: secret, LinkIssuer: "reach-portal"},
			Mail: config.MailConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
		}
		signer, mail, err := BuildEmailLinks(cfg, discardLogger())
		require.NoError(t, err)
		assert.NotNil(t, signer)
		assert.IsType(t, &mailer.SMTP{}, mail)
	})

	t.Run("short secret", func(t *testing.T) {
		cfg := &config.AppConfig{
			Auth: config.AuthConfig{LinkSecret: "short"},
			Mail: config.MailConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
		}
		_, _, err := BuildEmailLinks(cfg, discardLogger())
		assert.ErrorContains(t, err, "link signer")
	})
}
