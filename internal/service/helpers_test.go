package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reachcapital/portal/internal/adapters/magiclink"
	mocks "github.com/reachcapital/portal/internal/mocks/auth"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type fixture struct {
	svc        *AuthService
	sessions   *mocks.MemorySessionStore
	attempts   *mocks.MemoryAttemptStore
	local      *mocks.MemoryLocalStore
	events     *mocks.MemoryEventBus
	identities *mocks.MemoryIdentityRepository
	mailer     *mocks.RecordingMailer
	oauth      *mocks.MockOAuthProvider
	metrics    *statsd.Recorder
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:   mocks.NewMemorySessionStore(),
		attempts:   mocks.NewMemoryAttemptStore(),
		local:      mocks.NewMemoryLocalStore(),
		events:     mocks.NewMemoryEventBus(),
		identities: mocks.NewMemoryIdentityRepository(),
		mailer:     mocks.NewRecordingMailer(),
		oauth:      mocks.NewMockOAuthProvider(),
		metrics:    &statsd.Recorder{},
		now:        time.Now().UTC().Truncate(time.Second),
	}
	signer, err := magiclink.NewSigner(testSecret, "portal-test", magiclink.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.svc, err = NewAuthService(AuthServiceOptions{
		Sessions:   f.sessions,
		Attempts:   f.attempts,
		Local:      f.local,
		Events:     f.events,
		Identities: f.identities,
		Signer:     signer,
		Mailer:     f.mailer,
		OAuth:      map[string]ports.OAuthProvider{"Google": f.oauth},
		BaseURL:    "https://portal.example/",
		Metrics:    f.metrics,
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}
