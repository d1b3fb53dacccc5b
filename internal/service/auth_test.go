package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	apperrors "github.com/reachcapital/portal/internal/errors"
	mocks "github.com/reachcapital/portal/internal/mocks/auth"
	"github.com/reachcapital/portal/internal/ports"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{})
	assert.Error(t, err)

	_, err = NewAuthService(AuthServiceOptions{
		Sessions:   mocks.NewMemorySessionStore(),
		Attempts:   mocks.NewMemoryAttemptStore(),
		Local:      mocks.NewMemoryLocalStore(),
		Events:     mocks.NewMemoryEventBus(),
		Identities: mocks.NewMemoryIdentityRepository(),
		Mailer:     mocks.NewRecordingMailer(),
	})
	assert.ErrorContains(t, err, "signer and a mailer")
}

func TestClientSession_EmailLinkRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("client-a")

	err := client.SignInWithEmailLink(ctx, ports.EmailLinkInput{
		Email:          " Founder@Startup.IO ",
		RedirectTarget: "/business-portal",
		RoleHint:       domainauth.RoleBusiness,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.attempts.Len())

	hint, ok, _ := f.local.Get(ctx, "client-a", domainauth.LocalKeyLoginRole)
	assert.True(t, ok)
	assert.Equal(t, "business", hint)

	link := f.mailer.Link("founder@startup.io")
	require.NotEmpty(t, link)
	u := mustParse(t, link)
	assert.Equal(t, "portal.example", u.Host)
	assert.Equal(t, "/auth/callback", u.Path)

	res, err := client.ExchangeAuthCodeForSession(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleBusiness, res.Attempt.RoleHint)
	assert.Equal(t, "/business-portal", res.Attempt.RedirectURI)
	assert.Equal(t, "founder@startup.io", res.Session.Identity.Email)
	assert.Equal(t, domainauth.ProviderEmail, res.Session.Provider)
	assert.Equal(t, f.now.Add(DefaultSessionTTL), res.Session.ExpiresAt)

	state, err := client.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Session)
	assert.Equal(t, res.Session.ID, state.Session.ID)
	assert.Equal(t, uint64(1), state.Revision)

	require.Len(t, f.events.Published, 1)
	assert.Equal(t, domainauth.EventSignedIn, f.events.Published[0].Kind)

	// Links are single use.
	_, err = client.ExchangeAuthCodeForSession(ctx, u)
	assert.True(t, apperrors.IsUnauthenticated(err), "got %v", err)

	assert.Equal(t, int64(1), f.metrics.Total("auth.email_link", map[string]string{"result": "success"}))
	assert.Equal(t, int64(1), f.metrics.Total("auth.sign_in", map[string]string{"result": "success", "provider": "email"}))
	assert.Equal(t, int64(1), f.metrics.Total("auth.sign_in", map[string]string{"result": "failure", "error_class": "unauthenticated"}))
}

func TestClientSession_EmailLinkValidation(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Client("c").SignInWithEmailLink(context.Background(), ports.EmailLinkInput{Email: "not-an-email"})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))
	assert.Equal(t, 0, f.attempts.Len())
}

func TestClientSession_EmailLinkMailerFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.Err = errors.New("relay down")
	ctx := context.Background()
	err := f.svc.Client("c").SignInWithEmailLink(ctx, ports.EmailLinkInput{Email: "a@example.com", RoleHint: domainauth.RoleBusiness})
	assert.True(t, apperrors.IsProvider(err))
	assert.Equal(t, "We couldn't send your sign-in link. Please try again.", apperrors.UserMessage(err, ""))
	assert.Equal(t, int64(1), f.metrics.Total("auth.email_link", map[string]string{"result": "failure", "error_class": "provider"}))

	_, hinted, _ := f.local.Get(ctx, "c", domainauth.LocalKeyLoginRole)
	assert.False(t, hinted, "an unsent link leaves no role hint behind")
}

func TestClientSession_ExpiredLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")
	require.NoError(t, client.SignInWithEmailLink(ctx, ports.EmailLinkInput{Email: "a@example.com"}))
	link := f.mailer.Link("a@example.com")

	f.now = f.now.Add(DefaultLinkTTL + time.Second)
	_, err := client.ExchangeAuthCodeForSession(ctx, mustParse(t, link))
	assert.True(t, apperrors.IsUnauthenticated(err), "got %v", err)
	assert.Equal(t, "This sign-in link is invalid or has expired.", apperrors.UserMessage(err, ""))
}

func TestClientSession_OAuthRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("client-o")
	f.oauth.DefaultUser = ports.ProviderIdentity{
		Subject:  "g-1",
		Email:    "Admin@Reach.example",
		Metadata: map[string]string{"role": "admin"},
	}

	start, err := client.SignInWithOAuth(ctx, ports.OAuthInput{Provider: "google", RoleHint: domainauth.RoleStudent})
	require.NoError(t, err)
	assert.Contains(t, start.AuthURL, "https://mock-idp/auth")

	var gotNonce string
	f.oauth.ExchangeFunc = func(_ context.Context, in ports.ExchangeInput) (ports.ProviderIdentity, error) {
		gotNonce = in.Nonce
		return f.oauth.DefaultUser, nil
	}
	res, err := client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?code=abc&state="+start.State))
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", gotNonce)
	assert.Equal(t, "oauth:google", res.Session.Provider)
	assert.Equal(t, "admin@reach.example", res.Session.Identity.Email)

	role, ok := res.Session.Identity.Role()
	assert.True(t, ok)
	assert.Equal(t, domainauth.RoleAdmin, role, "provider role seeds a new identity")
}

func TestClientSession_OAuthStateFromAnotherClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, err := f.svc.Client("victim").SignInWithOAuth(ctx, ports.OAuthInput{Provider: "google"})
	require.NoError(t, err)

	_, err = f.svc.Client("attacker").ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?code=x&state="+start.State))
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestClientSession_OAuthErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")

	_, err := client.SignInWithOAuth(ctx, ports.OAuthInput{Provider: "myspace"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?error=access_denied"))
	assert.True(t, apperrors.IsUnauthenticated(err))

	_, err = client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?code=x&state=unknown"))
	assert.True(t, apperrors.IsUnauthenticated(err))

	_, err = client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback"))
	assert.True(t, apperrors.IsValidation(err))

	start, err := client.SignInWithOAuth(ctx, ports.OAuthInput{Provider: "google"})
	require.NoError(t, err)
	f.oauth.ExchangeFunc = func(context.Context, ports.ExchangeInput) (ports.ProviderIdentity, error) {
		return ports.ProviderIdentity{}, errors.New("token endpoint 500")
	}
	_, err = client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?code=x&state="+start.State))
	assert.True(t, apperrors.IsProvider(err))
}

func TestClientSession_ExistingIdentityKeepsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identities.Put(domainauth.Identity{
		ID:       "ident-1",
		Email:    "mentor@example.com",
		Metadata: map[string]string{"role": "business"},
	})
	f.oauth.DefaultUser = ports.ProviderIdentity{Email: "mentor@example.com", Metadata: map[string]string{"role": "admin"}}

	client := f.svc.Client("c")
	start, err := client.SignInWithOAuth(ctx, ports.OAuthInput{Provider: "google"})
	require.NoError(t, err)
	res, err := client.ExchangeAuthCodeForSession(ctx, mustParse(t, "/auth/callback?code=x&state="+start.State))
	require.NoError(t, err)

	assert.Equal(t, "ident-1", res.Session.Identity.ID)
	assert.Equal(t, "business", res.Session.Identity.Metadata["role"])
	assert.Equal(t, 0, f.identities.Creates)
}

func TestClientSession_SignInReplacesPreviousSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")

	first := signIn(t, f, client, "a@example.com")
	second := signIn(t, f, client, "b@example.com")

	_, err := f.sessions.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	state, err := client.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, state.Session.ID)
}

func TestClientSession_SignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")
	sess := signIn(t, f, client, "a@example.com")
	require.NoError(t, f.local.Set(ctx, "c", domainauth.LocalKeyStudentSubmissionID, "sub-1"))

	require.NoError(t, client.SignOut(ctx))

	state, err := client.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.Session)
	_, err = f.sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, ok, _ := f.local.Get(ctx, "c", domainauth.LocalKeyStudentSubmissionID)
	assert.False(t, ok, "local storage is cleared on sign-out")

	last := f.events.Published[len(f.events.Published)-1]
	assert.Equal(t, domainauth.EventSignedOut, last.Kind)
	assert.Nil(t, last.Session)
	assert.Equal(t, state.Revision, last.Revision)
}

func TestClientSession_UpdateIdentityMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")

	err := client.UpdateIdentityMetadata(ctx, map[string]string{"role": "student"})
	assert.True(t, apperrors.IsUnauthenticated(err), "signed-out update fails")

	sess := signIn(t, f, client, "a@example.com")
	require.NoError(t, client.UpdateIdentityMetadata(ctx, map[string]string{"role": "student"}))

	state, err := client.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, state.Session.ID)
	assert.Equal(t, "student", state.Session.Identity.Metadata["role"])

	last := f.events.Published[len(f.events.Published)-1]
	assert.Equal(t, domainauth.EventUserUpdated, last.Kind)
	assert.Equal(t, state.Revision, last.Revision)
}

func TestClientSession_RefreshSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.svc.Client("c")
	require.NoError(t, client.RefreshSession(ctx), "refresh while signed out is a no-op")

	signIn(t, f, client, "a@example.com")
	f.now = f.now.Add(time.Hour)
	require.NoError(t, client.RefreshSession(ctx))

	state, err := client.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultSessionTTL), state.Session.ExpiresAt)
	assert.Equal(t, domainauth.EventTokenRefreshed, f.events.Published[len(f.events.Published)-1].Kind)
}

func TestClientSession_CurrentSessionDropsStaleBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Bind(ctx, "c", "gone", time.Hour))

	state, err := f.svc.Client("c").CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.Session)
	sid, _ := f.sessions.Current(ctx, "c")
	assert.Empty(t, sid)
}

func TestClientSession_SubscribeIsScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var got []domainauth.EventKind
	unsub, err := f.svc.Client("mine").Subscribe(ctx, func(ev domainauth.SessionEvent) { got = append(got, ev.Kind) })
	require.NoError(t, err)

	signIn(t, f, f.svc.Client("other"), "x@example.com")
	signIn(t, f, f.svc.Client("mine"), "y@example.com")
	unsub()
	require.NoError(t, f.svc.Client("mine").SignOut(ctx))

	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, got)
}

func TestAuthService_RevokeClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signIn(t, f, f.svc.Client("c"), "a@example.com")

	require.NoError(t, f.svc.RevokeClient(ctx, "c"))
	state, err := f.svc.Client("c").CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.Session)
	assert.Error(t, f.svc.RevokeClient(ctx, ""))
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail("  A.B@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "a.b@example.com", got)

	for _, bad := range []string{"", "a", "A <a@example.com>", "a@example.com\r\nBcc: x@y"} {
		_, err = normalizeEmail(bad)
		assert.Error(t, err, bad)
	}
}

// signIn completes an email-link sign-in for client and returns the session.
func signIn(t *testing.T, f *fixture, client *ClientSession, email string) domainauth.Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, client.SignInWithEmailLink(ctx, ports.EmailLinkInput{Email: email}))
	res, err := client.ExchangeAuthCodeForSession(ctx, mustParse(t, f.mailer.Link(email)))
	require.NoError(t, err)
	return res.Session
}
