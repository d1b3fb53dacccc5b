package portal

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// fakeProvider is a scripted IdentityProvider for one client.
type fakeProvider struct {
	mu         sync.Mutex
	state      auth.SessionState
	fetchErr   error
	beforeDone func()
	subs       map[int]func(auth.SessionEvent)
	nextSub    int
	unsubs     int
	patches    []map[string]string
	patchErr   error
}

var _ ports.IdentityProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[int]func(auth.SessionEvent))}
}

func (p *fakeProvider) CurrentSession(context.Context) (auth.SessionState, error) {
	p.mu.Lock()
	state, err, hook := p.state, p.fetchErr, p.beforeDone
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return state, err
}

func (p *fakeProvider) Subscribe(_ context.Context, fn func(auth.SessionEvent)) (ports.Unsubscribe, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			p.unsubs++
		})
	}, nil
}

func (p *fakeProvider) SignInWithEmailLink(context.Context, ports.EmailLinkInput) error { return nil }

func (p *fakeProvider) SignInWithOAuth(context.Context, ports.OAuthInput) (ports.OAuthStart, error) {
	return ports.OAuthStart{}, nil
}

func (p *fakeProvider) SignOut(context.Context) error { return nil }

func (p *fakeProvider) UpdateIdentityMetadata(_ context.Context, patch map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patches = append(p.patches, patch)
	return p.patchErr
}

func (p *fakeProvider) ExchangeAuthCodeForSession(context.Context, *url.URL) (ports.ExchangeResult, error) {
	return ports.ExchangeResult{}, nil
}

func (p *fakeProvider) setState(s auth.SessionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *fakeProvider) emit(ev auth.SessionEvent) {
	p.mu.Lock()
	fns := make([]func(auth.SessionEvent), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (p *fakeProvider) recordedPatches() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.patches...)
}

func (p *fakeProvider) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func newSession(id string, metadata map[string]string) *auth.Session {
	return &auth.Session{
		ID:       id,
		ClientID: "client-1",
		Identity: auth.Identity{
			ID:       "ident-" + id,
			Email:    "user@example.com",
			Metadata: metadata,
		},
		Provider:  auth.ProviderEmail,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func signedIn(sess *auth.Session, rev uint64) auth.SessionEvent {
	return auth.SessionEvent{Kind: auth.EventSignedIn, Session: sess, Revision: rev, At: time.Now()}
}

func signedOut(rev uint64) auth.SessionEvent {
	return auth.SessionEvent{Kind: auth.EventSignedOut, Revision: rev, At: time.Now()}
}

type staticHint struct {
	role  auth.Role
	taken int
}

func (h *staticHint) TakeRoleHint(context.Context) (auth.Role, bool) {
	h.taken++
	if h.taken > 1 || h.role == "" {
		return "", false
	}
	return h.role, true
}
