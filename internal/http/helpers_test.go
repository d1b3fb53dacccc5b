package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reachcapital/portal/internal/adapters/magiclink"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	mocks "github.com/reachcapital/portal/internal/mocks/auth"
	"github.com/reachcapital/portal/internal/ports"
	"github.com/reachcapital/portal/internal/service"
)

const (
	testClientID = "7d0e3c8e-2b1f-4a57-9c39-6f1f3c0e5a11"
	testCSRF     = "csrf-test-token"
)

type stubGate struct {
	to  string
	err error
}

func (g stubGate) Destination(context.Context, string, domainauth.Identity) (string, error) {
	return g.to, g.err
}

type env struct {
	svc        *service.AuthService
	local      *mocks.MemoryLocalStore
	identities *mocks.MemoryIdentityRepository
	mailer     *mocks.RecordingMailer
	oauth      *mocks.MockOAuthProvider
	handler    http.Handler
}

func newEnv(t *testing.T, gate StudentDestination) *env {
	t.Helper()
	e := &env{
		local:      mocks.NewMemoryLocalStore(),
		identities: mocks.NewMemoryIdentityRepository(),
		mailer:     mocks.NewRecordingMailer(),
		oauth:      mocks.NewMockOAuthProvider(),
	}
	signer, err := magiclink.NewSigner("0123456789abcdef0123456789abcdef-http", "portal-test")
	require.NoError(t, err)
	e.svc, err = service.NewAuthService(service.AuthServiceOptions{
		Sessions:   mocks.NewMemorySessionStore(),
		Attempts:   mocks.NewMemoryAttemptStore(),
		Local:      e.local,
		Events:     mocks.NewMemoryEventBus(),
		Identities: e.identities,
		Signer:     signer,
		Mailer:     e.mailer,
		OAuth:      map[string]ports.OAuthProvider{"google": e.oauth},
		BaseURL:    "https://portal.example",
	})
	require.NoError(t, err)

	e.handler, err = NewRouter(RouterServices{
		Auth:      e.svc,
		Local:     e.local,
		Gate:      gate,
		Templates: os.DirFS("../../web/templates"),
	})
	require.NoError(t, err)
	return e
}

// get issues a GET as the test client.
func (e *env) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	withClientCookies(req)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// post submits a form as the test client, echoing the CSRF token.
func (e *env) post(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(CSRFFieldName, testCSRF)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	withClientCookies(req)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// signInByEmail runs the magic-link flow end to end and returns the callback response.
func (e *env) signInByEmail(t *testing.T, email string, role domainauth.Role) *httptest.ResponseRecorder {
	t.Helper()
	rec := e.post(t, "/auth/login/email", url.Values{"email": {email}, "role": {string(role)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	link, err := url.Parse(e.mailer.Link(strings.ToLower(email)))
	require.NoError(t, err)
	return e.get(t, link.RequestURI())
}

func withClientCookies(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: testClientID})
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: testCSRF})
}

// streamRecorder is a ResponseWriter safe to read while a handler streams into it.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	body   strings.Builder
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (s *streamRecorder) Header() http.Header { return s.header }

func (s *streamRecorder) WriteHeader(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

func (s *streamRecorder) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.Write(b)
}

func (s *streamRecorder) Flush() {}

func (s *streamRecorder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.String()
}

const eventually = 2 * time.Second
