package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.OAuthProvider      = (*MockOAuthProvider)(nil)
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.LoginAttemptStore  = (*MemoryAttemptStore)(nil)
	_ ports.LocalStore         = (*MemoryLocalStore)(nil)
	_ ports.EventBus           = (*MemoryEventBus)(nil)
	_ ports.IdentityRepository = (*MemoryIdentityRepository)(nil)
	_ ports.Mailer             = (*RecordingMailer)(nil)
	_ ports.Navigator          = (*RecordingNavigator)(nil)
)

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound = ports.ErrNotFound

// MockOAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockOAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.ProviderIdentity, error)

	AuthURL     string
	DefaultUser ports.ProviderIdentity

	mu        sync.Mutex
	callCount int
}

// NewMockOAuthProvider creates a MockOAuthProvider with sensible defaults.
func NewMockOAuthProvider() *MockOAuthProvider {
	return &MockOAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: ports.ProviderIdentity{
			Subject: "mock-sub-1",
			Email:   "mock.user@example.com",
		},
	}
}

func (m *MockOAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	state := fmt.Sprintf("state-%d", n)
	return m.AuthURL + "?state=" + state, state, fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ProviderIdentity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	return m.DefaultUser, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	bindings map[string]string
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
		bindings: make(map[string]string),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Current(_ context.Context, clientID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[clientID], nil
}

func (m *MemorySessionStore) Bind(_ context.Context, clientID, sessionID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[clientID] = sessionID
	return nil
}

func (m *MemorySessionStore) Unbind(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, clientID)
	return nil
}

// MemoryAttemptStore keeps login attempts in memory.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domainauth.LoginAttempt
}

// NewMemoryAttemptStore creates an empty attempt store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[string]domainauth.LoginAttempt)}
}

func (m *MemoryAttemptStore) Put(_ context.Context, a domainauth.LoginAttempt, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryAttemptStore) Consume(_ context.Context, id string) (domainauth.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return domainauth.LoginAttempt{}, ErrNotFound
	}
	delete(m.attempts, id)
	return a, nil
}

// Len reports the number of pending attempts.
func (m *MemoryAttemptStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// MemoryLocalStore is per-client key/value storage in memory.
type MemoryLocalStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

// NewMemoryLocalStore creates an empty local store.
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{data: make(map[string]map[string]string)}
}

func (m *MemoryLocalStore) Get(_ context.Context, clientID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[clientID][key]
	return v, ok, nil
}

func (m *MemoryLocalStore) Set(_ context.Context, clientID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[clientID] == nil {
		m.data[clientID] = make(map[string]string)
	}
	m.data[clientID][key] = value
	return nil
}

func (m *MemoryLocalStore) Take(_ context.Context, clientID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[clientID][key]
	delete(m.data[clientID], key)
	return v, ok, nil
}

func (m *MemoryLocalStore) Clear(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, clientID)
	return nil
}

// MemoryEventBus delivers events synchronously to in-process subscribers.
type MemoryEventBus struct {
	mu        sync.Mutex
	revisions map[string]uint64
	subs      map[string]map[int]func(domainauth.SessionEvent)
	nextSub   int
	Published []domainauth.SessionEvent
}

// NewMemoryEventBus creates an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		revisions: make(map[string]uint64),
		subs:      make(map[string]map[int]func(domainauth.SessionEvent)),
	}
}

func (b *MemoryEventBus) NextRevision(_ context.Context, clientID string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revisions[clientID]++
	return b.revisions[clientID], nil
}

func (b *MemoryEventBus) Revision(_ context.Context, clientID string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revisions[clientID], nil
}

func (b *MemoryEventBus) Publish(_ context.Context, clientID string, ev domainauth.SessionEvent) error {
	b.mu.Lock()
	b.Published = append(b.Published, ev)
	fns := make([]func(domainauth.SessionEvent), 0, len(b.subs[clientID]))
	for _, fn := range b.subs[clientID] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(
	_ context.Context,
	clientID string,
	fn func(domainauth.SessionEvent),
) (ports.Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[clientID] == nil {
		b.subs[clientID] = make(map[int]func(domainauth.SessionEvent))
	}
	id := b.nextSub
	b.nextSub++
	b.subs[clientID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[clientID], id)
		})
	}, nil
}

// Subscribers reports live subscriptions for clientID.
func (b *MemoryEventBus) Subscribers(clientID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[clientID])
}

// MemoryIdentityRepository keeps identities in memory.
type MemoryIdentityRepository struct {
	mu         sync.Mutex
	identities map[string]domainauth.Identity
	MergeErr   error
	// MergeGate, when set, holds every MergeMetadata call until it is closed.
	MergeGate  chan struct{}
	Merges     int
	Creates    int
}

// NewMemoryIdentityRepository creates an empty repository.
func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{identities: make(map[string]domainauth.Identity)}
}

func (r *MemoryIdentityRepository) GetByID(_ context.Context, id string) (*domainauth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := ident.Clone()
	return &c, nil
}

func (r *MemoryIdentityRepository) GetByEmail(_ context.Context, email string) (*domainauth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range r.identities {
		if strings.EqualFold(ident.Email, email) {
			c := ident.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryIdentityRepository) Create(
	_ context.Context,
	email string,
	metadata map[string]string,
) (*domainauth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Creates++
	for _, existing := range r.identities {
		if strings.EqualFold(existing.Email, email) {
			return nil, fmt.Errorf("create %s: %w", email, ports.ErrAlreadyExists)
		}
	}
	ident := domainauth.Identity{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Metadata:  map[string]string{},
		CreatedAt: time.Now(),
	}
	for k, v := range metadata {
		ident.Metadata[k] = v
	}
	r.identities[ident.ID] = ident
	c := ident.Clone()
	return &c, nil
}

// MergeCount reports MergeMetadata calls so far.
func (r *MemoryIdentityRepository) MergeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Merges
}

func (r *MemoryIdentityRepository) MergeMetadata(
	_ context.Context,
	id string,
	patch map[string]string,
) (*domainauth.Identity, error) {
	if r.MergeGate != nil {
		<-r.MergeGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Merges++
	if r.MergeErr != nil {
		return nil, r.MergeErr
	}
	ident, ok := r.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ident.Metadata == nil {
		ident.Metadata = map[string]string{}
	}
	for k, v := range patch {
		ident.Metadata[k] = v
	}
	r.identities[id] = ident
	c := ident.Clone()
	return &c, nil
}

// Put stores ident as-is (test setup).
func (r *MemoryIdentityRepository) Put(ident domainauth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[ident.ID] = ident.Clone()
}

// RecordingMailer captures sent links.
type RecordingMailer struct {
	mu    sync.Mutex
	Err   error
	Links map[string]string
}

// NewRecordingMailer creates a mailer that remembers the last link per recipient.
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{Links: make(map[string]string)}
}

func (m *RecordingMailer) SendSignInLink(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Links[to] = link
	return nil
}

// Link returns the last link sent to recipient.
func (m *RecordingMailer) Link(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Links[to]
}

// RecordingNavigator captures Replace calls.
type RecordingNavigator struct {
	mu    sync.Mutex
	Err   error
	Paths []string
}

func (n *RecordingNavigator) Replace(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Paths = append(n.Paths, path)
	return n.Err
}

// Calls returns a copy of the recorded paths.
func (n *RecordingNavigator) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Paths...)
}
