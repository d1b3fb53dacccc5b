// Package oidc provides the OIDC/OAuth sign-in adapter for the portal.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// Provider implements ports.OAuthProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	roleClaim  string

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.OAuthProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// RoleClaim is an optional JMESPath expression evaluated against the
	// id_token claims; a recognised role it yields is copied into metadata.
	RoleClaim  string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	roleClaim := strings.TrimSpace(config.RoleClaim)
	if roleClaim != "" {
		if _, err := jmespath.Compile(roleClaim); err != nil {
			return nil, fmt.Errorf("invalid role claim expression: %w", err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{
		httpClient: httpClient,
		roleClaim:  roleClaim,
	}

	// Single discovery fetch at startup.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       scopes,
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured one; it must match the IdP registration exactly.
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ProviderIdentity, error) {
	if in.Code == "" {
		return ports.ProviderIdentity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return ports.ProviderIdentity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return ports.ProviderIdentity{}, errors.New("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return ports.ProviderIdentity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.verifiedClaims(ctx, token, in.Nonce)
	if err != nil {
		return ports.ProviderIdentity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if stringClaim(claims, "email") == "" {
		if fillErr := p.fillFromUserInfo(ctx, token, claims); fillErr != nil {
			return ports.ProviderIdentity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}

	return p.identityFromClaims(claims)
}

func (p *Provider) verifiedClaims(ctx context.Context, tok *oauth2.Token, expectedNonce string) (map[string]any, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != expectedNonce {
		return nil, errors.New("invalid nonce")
	}
	claims := map[string]any{}
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return claims, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, claims map[string]any) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	extra := map[string]any{}
	if claimsErr := ui.Claims(&extra); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	mergeMissing(claims, extra)
	return nil
}

// identityFromClaims maps verified claims into a ProviderIdentity.
func (p *Provider) identityFromClaims(claims map[string]any) (ports.ProviderIdentity, error) {
	email := strings.ToLower(strings.TrimSpace(stringClaim(claims, "email")))
	if email == "" {
		return ports.ProviderIdentity{}, errors.New("identity provider returned no email")
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return ports.ProviderIdentity{}, errors.New("email address is not verified")
	}

	id := ports.ProviderIdentity{
		Subject: stringClaim(claims, "sub"),
		Email:   email,
	}
	if role, ok := p.roleFromClaims(claims); ok {
		id.Metadata = map[string]string{domainauth.MetadataRoleKey: string(role)}
	}
	return id, nil
}

func (p *Provider) roleFromClaims(claims map[string]any) (domainauth.Role, bool) {
	if p.roleClaim == "" {
		return "", false
	}
	v, err := jmespath.Search(p.roleClaim, claims)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return domainauth.ParseRole(s)
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// mergeMissing copies keys from src that dst lacks or holds as empty strings.
func mergeMissing(dst, src map[string]any) {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		if s, isStr := cur.(string); isStr && s == "" {
			dst[k] = v
		}
	}
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	for len(s) < length {
		extra := make([]byte, 3)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
