package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
	apperrors "github.com/reachcapital/portal/internal/errors"
	"github.com/reachcapital/portal/internal/observability/metrics"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// Defaults for AuthService lifetimes.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultAttemptTTL = 10 * time.Minute
	DefaultLinkTTL    = 15 * time.Minute
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Sessions   ports.SessionStore       // Required
	Attempts   ports.LoginAttemptStore  // Required
	Local      ports.LocalStore         // Required
	Events     ports.EventBus           // Required
	Identities ports.IdentityRepository // Required
	Signer     ports.LinkSigner         // Optional: email links disabled when nil
	Mailer     ports.Mailer             // Optional: email links disabled when nil
	// OAuth maps a provider name (as used in /auth/login/oauth?provider=) to its adapter.
	OAuth map[string]ports.OAuthProvider

	// BaseURL is the externally visible origin used to build callback links.
	BaseURL    string
	SessionTTL time.Duration
	AttemptTTL time.Duration
	LinkTTL    time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// AuthService is the identity provider: it owns sign-in flows, sessions and
// identity metadata for every client scope.
type AuthService struct {
	sessions   ports.SessionStore
	attempts   ports.LoginAttemptStore
	local      ports.LocalStore
	events     ports.EventBus
	identities ports.IdentityRepository
	signer     ports.LinkSigner
	mailer     ports.Mailer
	oauth      map[string]ports.OAuthProvider

	baseURL    string
	sessionTTL time.Duration
	attemptTTL time.Duration
	linkTTL    time.Duration

	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	// identityGroup collapses concurrent find-or-create calls for one email.
	identityGroup singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	switch {
	case opts.Sessions == nil:
		return nil, errors.New("session store is required")
	case opts.Attempts == nil:
		return nil, errors.New("login attempt store is required")
	case opts.Local == nil:
		return nil, errors.New("local store is required")
	case opts.Events == nil:
		return nil, errors.New("event bus is required")
	case opts.Identities == nil:
		return nil, errors.New("identity repository is required")
	}
	if (opts.Signer == nil) != (opts.Mailer == nil) {
		return nil, errors.New("email links need both a signer and a mailer")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	oauth := make(map[string]ports.OAuthProvider, len(opts.OAuth))
	for name, p := range opts.OAuth {
		if p != nil {
			oauth[strings.ToLower(name)] = p
		}
	}

	return &AuthService{
		sessions:   opts.Sessions,
		attempts:   opts.Attempts,
		local:      opts.Local,
		events:     opts.Events,
		identities: opts.Identities,
		signer:     opts.Signer,
		mailer:     opts.Mailer,
		oauth:      oauth,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		sessionTTL: durationOr(opts.SessionTTL, DefaultSessionTTL),
		attemptTTL: durationOr(opts.AttemptTTL, DefaultAttemptTTL),
		linkTTL:    durationOr(opts.LinkTTL, DefaultLinkTTL),
		logger:     logger.With("component", "auth_service"),
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

// EmailLinksEnabled reports whether magic-link sign-in is configured.
func (s *AuthService) EmailLinksEnabled() bool { return s.signer != nil && s.mailer != nil }

// OAuthProviders returns the configured provider names.
func (s *AuthService) OAuthProviders() []string {
	out := make([]string, 0, len(s.oauth))
	for name := range s.oauth {
		out = append(out, name)
	}
	return out
}

// Client binds the service to one client scope.
func (s *AuthService) Client(clientID string) *ClientSession {
	return &ClientSession{svc: s, clientID: clientID}
}

// RevokeClient signs a client scope out from outside its own requests.
func (s *AuthService) RevokeClient(ctx context.Context, clientID string) error {
	if clientID == "" {
		return errors.New("client ID is required")
	}
	return s.Client(clientID).SignOut(ctx)
}

// ClientSession is the identity provider as seen by one client scope.
type ClientSession struct {
	svc      *AuthService
	clientID string
}

var _ ports.IdentityProvider = (*ClientSession)(nil)

// ClientID returns the scope this session is bound to.
func (c *ClientSession) ClientID() string { return c.clientID }

// CurrentSession fetches the client's session once. The revision is read first
// so a concurrent event always carries a revision at least as high as the fetch.
func (c *ClientSession) CurrentSession(ctx context.Context) (domainauth.SessionState, error) {
	rev, err := c.svc.events.Revision(ctx, c.clientID)
	if err != nil {
		return domainauth.SessionState{}, fmt.Errorf("read revision: %w", err)
	}
	sess, err := c.session(ctx)
	if err != nil {
		return domainauth.SessionState{}, err
	}
	return domainauth.SessionState{Session: sess, Revision: rev}, nil
}

// session returns the bound session, or nil when signed out or expired.
func (c *ClientSession) session(ctx context.Context) (*domainauth.Session, error) {
	sid, err := c.svc.sessions.Current(ctx, c.clientID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sid == "" {
		return nil, nil
	}
	sess, err := c.svc.sessions.Get(ctx, sid)
	if errors.Is(err, ports.ErrNotFound) {
		if unbindErr := c.svc.sessions.Unbind(ctx, c.clientID); unbindErr != nil {
			c.svc.logger.WarnContext(ctx, "unbind stale session failed", "client_id", c.clientID, "error", unbindErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.ClientID != c.clientID {
		return nil, nil
	}
	return &sess, nil
}

// Subscribe delivers this client's session events.
func (c *ClientSession) Subscribe(ctx context.Context, fn func(domainauth.SessionEvent)) (ports.Unsubscribe, error) {
	return c.svc.events.Subscribe(ctx, c.clientID, fn)
}

// SignInWithEmailLink records a login attempt and mails a signed link that completes it.
func (c *ClientSession) SignInWithEmailLink(ctx context.Context, in ports.EmailLinkInput) error {
	s := c.svc
	if !s.EmailLinksEnabled() {
		return apperrors.Validation("Email sign-in is not available.")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return err
	}

	attempt := c.newAttempt(domainauth.ProviderEmail, in.RoleHint, in.RedirectTarget)
	attempt.Email = email
	if err = s.attempts.Put(ctx, attempt, s.linkTTL); err != nil {
		return fmt.Errorf("save login attempt: %w", err)
	}

	token, err := s.signer.Sign(attempt, s.linkTTL)
	if err != nil {
		return fmt.Errorf("sign link: %w", err)
	}
	link := s.baseURL + routing.PathAuthCallback + "?" + url.Values{"token": {token}}.Encode()
	if err = s.mailer.SendSignInLink(ctx, email, link); err != nil {
		sendErr := apperrors.Wrap(err, apperrors.ErrCodeProvider, "We couldn't send your sign-in link. Please try again.")
		metrics.EmitAuth(s.metrics, metrics.AuthMetric{Name: "auth.email_link", Result: metrics.ResultFailure, Provider: domainauth.ProviderEmail, Err: sendErr})
		return sendErr
	}
	// Only a sent link leaves a hint behind.
	c.rememberHint(ctx, attempt.RoleHint)
	metrics.EmitAuth(s.metrics, metrics.AuthMetric{Name: "auth.email_link", Result: metrics.ResultSuccess, Provider: domainauth.ProviderEmail})
	s.logger.InfoContext(ctx, "sign-in link sent", "client_id", c.clientID, "attempt_id", attempt.ID)
	return nil
}

// SignInWithOAuth starts a redirect-based sign-in. The attempt is keyed by the
// provider state so the callback can find it.
func (c *ClientSession) SignInWithOAuth(ctx context.Context, in ports.OAuthInput) (ports.OAuthStart, error) {
	s := c.svc
	name := strings.ToLower(strings.TrimSpace(in.Provider))
	provider, ok := s.oauth[name]
	if !ok {
		return ports.OAuthStart{}, apperrors.ValidationField("provider", "That sign-in method is not available.")
	}

	authURL, state, nonce, err := provider.Begin(ctx, ports.BeginInput{RedirectURL: s.baseURL + routing.PathAuthCallback})
	if err != nil {
		return ports.OAuthStart{}, apperrors.Wrap(err, apperrors.ErrCodeProvider, "Sign-in is unavailable right now. Please try again.")
	}

	attempt := c.newAttempt(domainauth.ProviderOAuthPrefix+name, in.RoleHint, in.RedirectTarget)
	attempt.ID = state
	attempt.Nonce = nonce
	if err = s.attempts.Put(ctx, attempt, s.attemptTTL); err != nil {
		return ports.OAuthStart{}, fmt.Errorf("save login attempt: %w", err)
	}
	c.rememberHint(ctx, attempt.RoleHint)
	return ports.OAuthStart{AuthURL: authURL, State: state}, nil
}

// ExchangeAuthCodeForSession completes a sign-in from the callback URL. It accepts
// either a magic-link token or an OAuth code and state.
func (c *ClientSession) ExchangeAuthCodeForSession(ctx context.Context, callback *url.URL) (ports.ExchangeResult, error) {
	if callback == nil {
		return ports.ExchangeResult{}, apperrors.Validation("Missing sign-in callback.")
	}
	q := callback.Query()
	if e := q.Get("error"); e != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = "Sign-in was cancelled or denied."
		}
		return ports.ExchangeResult{}, apperrors.Unauthenticated(msg)
	}

	var (
		attempt  domainauth.LoginAttempt
		email    string
		metadata map[string]string
		err      error
	)
	switch {
	case q.Get("token") != "":
		attempt, err = c.consumeLink(ctx, q.Get("token"))
		email = attempt.Email
	case q.Get("code") != "" && q.Get("state") != "":
		var pid ports.ProviderIdentity
		attempt, pid, err = c.consumeOAuth(ctx, q.Get("code"), q.Get("state"))
		email, metadata = pid.Email, pid.Metadata
	default:
		err = apperrors.Validation("This sign-in link is incomplete.")
	}
	if err != nil {
		metrics.EmitAuth(c.svc.metrics, metrics.AuthMetric{Name: "auth.sign_in", Result: metrics.ResultFailure, Provider: attempt.Provider, Err: err})
		return ports.ExchangeResult{}, err
	}

	ident, err := c.svc.findOrCreateIdentity(ctx, email, metadata)
	if err != nil {
		return ports.ExchangeResult{}, err
	}
	sess, err := c.establish(ctx, *ident, attempt.Provider)
	if err != nil {
		return ports.ExchangeResult{}, err
	}
	role, _ := ident.Role()
	var elapsed time.Duration
	if !attempt.CreatedAt.IsZero() {
		elapsed = c.svc.now().Sub(attempt.CreatedAt)
	}
	metrics.EmitAuth(c.svc.metrics, metrics.AuthMetric{
		Name:     "auth.sign_in",
		Result:   metrics.ResultSuccess,
		Provider: attempt.Provider,
		Role:     string(role),
		Duration: elapsed,
	})
	c.svc.logger.InfoContext(ctx, "signed in",
		"client_id", c.clientID, "session_id", sess.ID, "identity_id", ident.ID, "provider", attempt.Provider)
	return ports.ExchangeResult{Session: sess, Attempt: attempt}, nil
}

func (c *ClientSession) consumeLink(ctx context.Context, token string) (domainauth.LoginAttempt, error) {
	s := c.svc
	if s.signer == nil {
		return domainauth.LoginAttempt{}, apperrors.Validation("Email sign-in is not available.")
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		return domainauth.LoginAttempt{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated,
			"This sign-in link is invalid or has expired.")
	}
	attempt, err := s.attempts.Consume(ctx, claims.AttemptID)
	if err != nil {
		return domainauth.LoginAttempt{}, usedOrExpired(err)
	}
	if attempt.Provider != domainauth.ProviderEmail || !strings.EqualFold(attempt.Email, claims.Email) {
		return domainauth.LoginAttempt{}, apperrors.Unauthenticated("This sign-in link is invalid or has expired.")
	}
	return attempt, nil
}

func (c *ClientSession) consumeOAuth(
	ctx context.Context,
	code, state string,
) (domainauth.LoginAttempt, ports.ProviderIdentity, error) {
	s := c.svc
	attempt, err := s.attempts.Consume(ctx, state)
	if err != nil {
		return domainauth.LoginAttempt{}, ports.ProviderIdentity{}, usedOrExpired(err)
	}
	// The state must come back to the browser that started the flow.
	if attempt.ClientID != c.clientID {
		return domainauth.LoginAttempt{}, ports.ProviderIdentity{}, apperrors.Unauthenticated(
			"Sign-in must be completed in the browser where it started.")
	}
	name := strings.TrimPrefix(attempt.Provider, domainauth.ProviderOAuthPrefix)
	provider, ok := s.oauth[name]
	if !ok {
		return domainauth.LoginAttempt{}, ports.ProviderIdentity{}, apperrors.Validation("That sign-in method is not available.")
	}
	pid, err := provider.Exchange(ctx, ports.ExchangeInput{Code: code, State: state, Nonce: attempt.Nonce})
	if err != nil {
		return domainauth.LoginAttempt{}, ports.ProviderIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeProvider,
			"We couldn't complete sign-in with that provider. Please try again.")
	}
	if _, emailErr := normalizeEmail(pid.Email); emailErr != nil {
		return domainauth.LoginAttempt{}, ports.ProviderIdentity{}, apperrors.Unauthenticated(
			"Your account did not share a usable email address.")
	}
	return attempt, pid, nil
}

// establish persists a new session for ident, replaces any previous one, and
// announces it on the client's event stream.
func (c *ClientSession) establish(ctx context.Context, ident domainauth.Identity, provider string) (domainauth.Session, error) {
	s := c.svc
	sess := domainauth.Session{
		ID:        uuid.NewString(),
		ClientID:  c.clientID,
		Identity:  ident.Clone(),
		Provider:  provider,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	prev, err := s.sessions.Current(ctx, c.clientID)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if err = s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}
	if err = s.sessions.Bind(ctx, c.clientID, sess.ID, s.sessionTTL); err != nil {
		return domainauth.Session{}, fmt.Errorf("bind session: %w", err)
	}
	if prev != "" && prev != sess.ID {
		if delErr := s.sessions.Delete(ctx, prev); delErr != nil {
			s.logger.WarnContext(ctx, "delete replaced session failed", "session_id", prev, "error", delErr)
		}
	}
	if err = c.publish(ctx, domainauth.EventSignedIn, &sess); err != nil {
		return domainauth.Session{}, err
	}
	return sess, nil
}

// SignOut ends the client's session and clears its local storage.
func (c *ClientSession) SignOut(ctx context.Context) error {
	s := c.svc
	sid, err := s.sessions.Current(ctx, c.clientID)
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	var errs []error
	if sid != "" {
		if delErr := s.sessions.Delete(ctx, sid); delErr != nil {
			errs = append(errs, fmt.Errorf("delete session: %w", delErr))
		}
	}
	if unbindErr := s.sessions.Unbind(ctx, c.clientID); unbindErr != nil {
		errs = append(errs, fmt.Errorf("unbind session: %w", unbindErr))
	}
	if clearErr := s.local.Clear(ctx, c.clientID); clearErr != nil {
		errs = append(errs, fmt.Errorf("clear local storage: %w", clearErr))
	}
	if pubErr := c.publish(ctx, domainauth.EventSignedOut, nil); pubErr != nil {
		errs = append(errs, pubErr)
	}
	if err = errors.Join(errs...); err != nil {
		return err
	}
	metrics.EmitAuth(s.metrics, metrics.AuthMetric{Name: "auth.sign_out", Result: metrics.ResultSuccess})
	s.logger.InfoContext(ctx, "signed out", "client_id", c.clientID, "session_id", sid)
	return nil
}

// UpdateIdentityMetadata merges patch into the signed-in identity's metadata and
// refreshes the session snapshot.
func (c *ClientSession) UpdateIdentityMetadata(ctx context.Context, patch map[string]string) error {
	s := c.svc
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperrors.Unauthenticated("You are not signed in.")
	}
	ident, err := s.identities.MergeMetadata(ctx, sess.Identity.ID, patch)
	if err != nil {
		return fmt.Errorf("merge identity metadata: %w", err)
	}
	sess.Identity = ident.Clone()
	if err = s.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return c.publish(ctx, domainauth.EventUserUpdated, sess)
}

// RefreshSession extends the session's expiry. It is a no-op when signed out.
func (c *ClientSession) RefreshSession(ctx context.Context) error {
	s := c.svc
	sess, err := c.session(ctx)
	if err != nil || sess == nil {
		return err
	}
	sess.ExpiresAt = s.now().Add(s.sessionTTL)
	if err = s.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err = s.sessions.Bind(ctx, c.clientID, sess.ID, s.sessionTTL); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	return c.publish(ctx, domainauth.EventTokenRefreshed, sess)
}

func (c *ClientSession) publish(ctx context.Context, kind domainauth.EventKind, sess *domainauth.Session) error {
	s := c.svc
	rev, err := s.events.NextRevision(ctx, c.clientID)
	if err != nil {
		return fmt.Errorf("next revision: %w", err)
	}
	ev := domainauth.SessionEvent{Kind: kind, Session: sess, Revision: rev, At: s.now()}
	if err = s.events.Publish(ctx, c.clientID, ev); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

func (c *ClientSession) newAttempt(provider string, hint domainauth.Role, redirect string) domainauth.LoginAttempt {
	a := domainauth.LoginAttempt{
		ID:        uuid.NewString(),
		ClientID:  c.clientID,
		Provider:  provider,
		CreatedAt: c.svc.now(),
	}
	if hint.Valid() {
		a.RoleHint = hint
	}
	if redirect != "" {
		a.RedirectURI = routing.SafeRedirectPath(redirect)
	}
	return a
}

// rememberHint mirrors the hint into local storage for runtimes that never see
// the attempt, such as a second tab that hydrates from the event stream.
func (c *ClientSession) rememberHint(ctx context.Context, hint domainauth.Role) {
	if !hint.Valid() {
		return
	}
	if err := c.svc.local.Set(ctx, c.clientID, domainauth.LocalKeyLoginRole, string(hint)); err != nil {
		c.svc.logger.WarnContext(ctx, "store role hint failed", "client_id", c.clientID, "error", err)
	}
}

// findOrCreateIdentity returns the identity for email, creating it on first
// sign-in. A role asserted by the provider fills in a missing stored role.
func (s *AuthService) findOrCreateIdentity(
	ctx context.Context,
	email string,
	providerMeta map[string]string,
) (*domainauth.Identity, error) {
	v, err, _ := s.identityGroup.Do(email, func() (any, error) {
		ident, err := s.identities.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			ident, err = s.identities.Create(ctx, email, providerMeta)
			if errors.Is(err, ports.ErrAlreadyExists) {
				ident, err = s.identities.GetByEmail(ctx, email)
			}
			if err != nil {
				return nil, fmt.Errorf("create identity: %w", err)
			}
			return ident, nil
		case err != nil:
			return nil, fmt.Errorf("lookup identity: %w", err)
		}
		if _, has := ident.Role(); !has {
			if role, ok := (domainauth.Identity{Metadata: providerMeta}).Role(); ok {
				return s.identities.MergeMetadata(ctx, ident.ID, map[string]string{domainauth.MetadataRoleKey: string(role)})
			}
		}
		return ident, nil
	})
	if err != nil {
		return nil, err
	}
	ident, ok := v.(*domainauth.Identity)
	if !ok || ident == nil {
		return nil, apperrors.Internal("identity lookup returned no identity")
	}
	out := ident.Clone()
	return &out, nil
}

func usedOrExpired(err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return apperrors.Unauthenticated("This sign-in link has already been used or has expired.")
	}
	return fmt.Errorf("consume login attempt: %w", err)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || strings.ContainsAny(email, "\r\n") {
		return "", apperrors.ValidationField("email", "Enter a valid email address.")
	}
	return email, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
