// Package portal holds the per-client auth runtime: the session store mirror,
// role resolution, and the redirectors that react to session changes.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// Snapshot is an atomic view of the store.
type Snapshot struct {
	Session  *auth.Session
	User     *auth.Identity
	Loading  bool
	Revision uint64
}

// Authenticated reports whether a user is present.
func (s Snapshot) Authenticated() bool { return s.User != nil }

// Change is delivered to watchers after the store accepts an update.
// Kind is empty for the result of the initial fetch.
type Change struct {
	Kind auth.EventKind
	Prev Snapshot
	Next Snapshot
}

// StoreOptions groups dependencies for Store.
type StoreOptions struct {
	Provider ports.IdentityProvider // Required
	Logger   *slog.Logger           // Optional
}

// Store mirrors the provider's session for one client scope.
// It is the only writer of its state; everything else reads Snapshot.
type Store struct {
	provider ports.IdentityProvider
	logger   *slog.Logger

	// dispatch serializes apply+notify so watchers observe changes in order.
	dispatch sync.Mutex

	mu       sync.Mutex
	snap     Snapshot
	closed   bool
	unsub    ports.Unsubscribe
	watchers []func(Change)
}

// NewStore constructs a Store in the loading state.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider: opts.Provider,
		logger:   logger.With("component", "session_store"),
		snap:     Snapshot{Loading: true},
	}, nil
}

// Watch registers fn to run after every accepted change.
func (s *Store) Watch(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Start subscribes to the live stream and then performs the initial fetch.
// Subscribing first means no event is lost in between; revisions order the two.
func (s *Store) Start(ctx context.Context) error {
	unsub, err := s.provider.Subscribe(ctx, s.onEvent)
	if err != nil {
		s.logger.WarnContext(ctx, "session subscribe failed", "error", err)
		s.settleEmpty(ctx)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()

	s.Load(ctx)
	return nil
}

// Load performs a single fetch of the current session.
// Failure leaves the store signed out with Loading=false.
func (s *Store) Load(ctx context.Context) Snapshot {
	state, err := s.provider.CurrentSession(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "session fetch failed", "error", err)
		s.settleEmpty(ctx)
		return s.Snapshot()
	}
	s.apply("", state)
	return s.Snapshot()
}

// Close releases the subscription. Later updates are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (s *Store) onEvent(ev auth.SessionEvent) {
	s.apply(ev.Kind, ev.State())
}

// settleEmpty clears the loading flag without touching a session that
// may already have arrived through the subscription.
func (s *Store) settleEmpty(ctx context.Context) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if s.closed || !s.snap.Loading {
		s.mu.Unlock()
		return
	}
	prev := s.snap
	s.snap.Loading = false
	next := s.snap
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "session settled without a session")
	notify(watchers, Change{Prev: prev, Next: next})
}

func (s *Store) apply(kind auth.EventKind, state auth.SessionState) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if state.Revision < s.snap.Revision {
		s.mu.Unlock()
		s.logger.Debug("stale session update dropped",
			"kind", kind, "revision", state.Revision, "current", s.snap.Revision)
		return
	}

	prev := s.snap
	next := Snapshot{Revision: state.Revision}
	if state.Session != nil {
		sess := *state.Session
		sess.Identity = state.Session.Identity.Clone()
		user := sess.Identity.Clone()
		next.Session = &sess
		next.User = &user
	}
	s.snap = next
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	notify(watchers, Change{Kind: kind, Prev: prev, Next: next})
}

func notify(watchers []func(Change), c Change) {
	for _, fn := range watchers {
		fn(c)
	}
}
