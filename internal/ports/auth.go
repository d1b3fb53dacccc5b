package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"net/url"
	"time"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
)

// Sentinels shared by adapters so services can classify lookups without
// knowing which backend answered.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Unsubscribe releases a live subscription. It is safe to call more than once.
type Unsubscribe func()

// EmailLinkInput groups parameters for starting a magic-link sign-in.
type EmailLinkInput struct {
	Email          string
	RedirectTarget string
	RoleHint       domainauth.Role
}

// OAuthInput groups parameters for starting a redirect-based sign-in.
type OAuthInput struct {
	Provider       string
	RedirectTarget string
	RoleHint       domainauth.Role
}

// OAuthStart is returned when a redirect-based sign-in begins.
type OAuthStart struct {
	AuthURL string
	State   string
}

// ExchangeResult is the outcome of completing a redirect-based sign-in.
// Attempt carries the single-use role hint captured when the sign-in began.
type ExchangeResult struct {
	Session domainauth.Session
	Attempt domainauth.LoginAttempt
}

// IdentityProvider is the identity/storage provider as seen by one client scope.
type IdentityProvider interface {
	// CurrentSession fetches the client's session once.
	CurrentSession(ctx context.Context) (domainauth.SessionState, error)
	// Subscribe delivers session changes for the client until ctx ends or Unsubscribe is called.
	Subscribe(ctx context.Context, fn func(domainauth.SessionEvent)) (Unsubscribe, error)
	SignInWithEmailLink(ctx context.Context, in EmailLinkInput) error
	SignInWithOAuth(ctx context.Context, in OAuthInput) (OAuthStart, error)
	SignOut(ctx context.Context) error
	UpdateIdentityMetadata(ctx context.Context, patch map[string]string) error
	ExchangeAuthCodeForSession(ctx context.Context, callback *url.URL) (ExchangeResult, error)
}

// Navigator performs client navigation. Replace never adds a history entry.
type Navigator interface {
	Replace(ctx context.Context, path string) error
}

// BeginInput carries inputs for initiating an OAuth flow.
type BeginInput struct {
	RedirectURL string
}

// OAuthProvider initiates and completes an authentication flow against an IdP.
type OAuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying the nonce, and returns the provider identity.
	Exchange(ctx context.Context, in ExchangeInput) (ProviderIdentity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// ProviderIdentity is what an external IdP tells us about a user.
// Metadata holds claims the adapter was configured to copy (for example a role claim).
type ProviderIdentity struct {
	Subject  string
	Email    string
	Metadata map[string]string
}

// SessionStore persists and retrieves client sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// Current returns the session ID bound to a client, or "" when signed out.
	Current(ctx context.Context, clientID string) (string, error)
	Bind(ctx context.Context, clientID, sessionID string, ttl time.Duration) error
	Unbind(ctx context.Context, clientID string) error
}

// LoginAttemptStore keeps single-use login attempts across the provider round trip.
type LoginAttemptStore interface {
	Put(ctx context.Context, attempt domainauth.LoginAttempt, ttl time.Duration) error
	// Consume returns and deletes the attempt atomically.
	Consume(ctx context.Context, id string) (domainauth.LoginAttempt, error)
}

// LocalStore is per-client key/value storage that survives reloads.
type LocalStore interface {
	Get(ctx context.Context, clientID, key string) (string, bool, error)
	Set(ctx context.Context, clientID, key, value string) error
	// Take returns and deletes key atomically.
	Take(ctx context.Context, clientID, key string) (string, bool, error)
	Clear(ctx context.Context, clientID string) error
}

// EventBus carries per-client session events.
type EventBus interface {
	// NextRevision returns a new, strictly increasing revision for clientID.
	NextRevision(ctx context.Context, clientID string) (uint64, error)
	// Revision returns the latest revision issued for clientID.
	Revision(ctx context.Context, clientID string) (uint64, error)
	Publish(ctx context.Context, clientID string, ev domainauth.SessionEvent) error
	Subscribe(ctx context.Context, clientID string, fn func(domainauth.SessionEvent)) (Unsubscribe, error)
}

// IdentityRepository persists identities and their metadata.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*domainauth.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domainauth.Identity, error)
	Create(ctx context.Context, email string, metadata map[string]string) (*domainauth.Identity, error)
	// MergeMetadata applies patch on top of existing metadata and returns the updated identity.
	MergeMetadata(ctx context.Context, id string, patch map[string]string) (*domainauth.Identity, error)
}

// LinkClaims are the verified contents of a magic-link token.
type LinkClaims struct {
	AttemptID string
	Email     string
	ExpiresAt time.Time
}

// LinkSigner issues and verifies magic-link tokens.
type LinkSigner interface {
	Sign(attempt domainauth.LoginAttempt, ttl time.Duration) (string, error)
	Verify(token string) (LinkClaims, error)
}

// Mailer delivers sign-in messages.
type Mailer interface {
	SendSignInLink(ctx context.Context, to, link string) error
}
