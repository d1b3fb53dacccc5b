// Package devauth provides a config-driven OAuthProvider for local development.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// Config controls the dev auth provider behavior.
// Role is optional; when empty the identity arrives without a role so the
// login-time hint decides, exactly as for a brand-new account.
type Config struct {
	Subject string
	Email   string
	Role    string
}

// Provider implements ports.OAuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and nonce. Exchange ignores the code and
// returns the configured identity.
type Provider struct {
	identity ports.ProviderIdentity
}

var _ ports.OAuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "dev|" + email
	}
	id := ports.ProviderIdentity{Subject: subject, Email: email}
	if cfg.Role != "" {
		role, ok := domainauth.ParseRole(cfg.Role)
		if !ok {
			return nil, fmt.Errorf("dev auth: unknown role %q", cfg.Role)
		}
		id.Metadata = map[string]string{domainauth.MetadataRoleKey: string(role)}
	}
	return &Provider{identity: id}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", state)
	return "/auth/callback?" + q.Encode(), state, nonce, nil
}

// Exchange ignores the provided code/state/nonce and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (ports.ProviderIdentity, error) {
	out := p.identity
	if p.identity.Metadata != nil {
		out.Metadata = map[string]string{}
		for k, v := range p.identity.Metadata {
			out.Metadata[k] = v
		}
	}
	return out, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
