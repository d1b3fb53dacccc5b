package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// RuntimeOptions groups dependencies for Runtime.
type RuntimeOptions struct {
	Provider     ports.IdentityProvider // Required: the provider bound to this client
	Navigator    ports.Navigator        // Required
	Hints        HintSource             // Optional: consulted when a session first appears
	Roles        RoleMemory             // Optional: role resolved at sign-in, per session
	Path         string                 // Current location of the client
	Logger       *slog.Logger           // Optional
	Metrics      statsd.Sink            // Optional
	WriteTimeout time.Duration          // Optional: role write-back bound
}

// Runtime owns the auth components for one client scope.
//
// A live runtime (Start/Run) follows the provider's event stream and reacts to
// every change. A one-shot runtime (Load) fetches once and leaves reactions to
// the caller through Guard and CompleteSignIn.
type Runtime struct {
	store    *Store
	resolver *Resolver
	postAuth *PostAuth
	logout   *LogoutRedirector
	machine  Machine
	hints    HintSource
	roles    RoleMemory
	logger   *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	path      string
	live      bool
	sessionID string
}

// NewRuntime wires a store, resolver, and redirectors around one provider.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("navigator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{
		hints:  opts.Hints,
		roles:  opts.Roles,
		logger: logger.With("component", "portal_runtime"),
		path:   routing.Normalize(opts.Path),
		ctx:    context.Background(),
	}
	nav := &trackingNavigator{next: opts.Navigator, rt: rt}

	var err error
	if rt.store, err = NewStore(StoreOptions{Provider: opts.Provider, Logger: logger}); err != nil {
		return nil, err
	}
	if rt.resolver, err = NewResolver(ResolverOptions{
		Provider:     opts.Provider,
		Logger:       logger,
		Metrics:      opts.Metrics,
		WriteTimeout: opts.WriteTimeout,
	}); err != nil {
		return nil, err
	}
	if rt.postAuth, err = NewPostAuth(PostAuthOptions{
		Resolver:  rt.resolver,
		Navigator: nav,
		Roles:     opts.Roles,
		Logger:    logger,
		Metrics:   opts.Metrics,
	}); err != nil {
		return nil, err
	}
	if rt.logout, err = NewLogoutRedirector(nav, logger, opts.Metrics); err != nil {
		return nil, err
	}

	rt.store.Watch(rt.onChange)
	return rt, nil
}

// Start subscribes to the provider and performs the initial fetch.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.machine.Begin(); err != nil {
		return err
	}
	rt.mu.Lock()
	rt.ctx = ctx
	rt.live = true
	rt.mu.Unlock()
	return rt.store.Start(ctx)
}

// Run starts the runtime and blocks until ctx is done, then tears it down.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.Start(ctx); err != nil {
		rt.Close()
		return err
	}
	<-ctx.Done()
	rt.Close()
	return nil
}

// Load fetches the session once without subscribing.
func (rt *Runtime) Load(ctx context.Context) (Snapshot, error) {
	if err := rt.machine.Begin(); err != nil {
		return Snapshot{}, err
	}
	rt.mu.Lock()
	rt.ctx = ctx
	rt.mu.Unlock()

	snap := rt.store.Load(ctx)
	if err := rt.machine.Settle(rt.effectiveRole(ctx, snap)); err != nil {
		rt.logger.WarnContext(ctx, "auth phase not settled", "error", err)
	}
	return snap, nil
}

// Close releases the subscription. In-flight updates that land later are ignored.
func (rt *Runtime) Close() {
	rt.store.Close()
}

// Wait blocks until pending role write-backs finish. Navigation never waits
// on it; callers use it to drain write-backs before teardown.
func (rt *Runtime) Wait() {
	rt.resolver.Wait()
}

// Snapshot returns the store's current state.
func (rt *Runtime) Snapshot() Snapshot { return rt.store.Snapshot() }

// Phase returns the current auth phase.
func (rt *Runtime) Phase() Phase { return rt.machine.Phase() }

// Path returns the client's current location.
func (rt *Runtime) Path() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.path
}

// Guard decides whether path may render for the current session and role.
func (rt *Runtime) Guard(path string) routing.Decision {
	snap := rt.store.Snapshot()
	d := routing.Decide(path, snap.Session, snap.Loading)
	if d.Action != routing.Render || snap.User == nil {
		return d
	}
	role := rt.machine.Phase().Role
	if role == "" {
		role = rt.effectiveRole(rt.currentContext(), snap)
	}
	return routing.Authorize(path, role)
}

// SetPath records a location change and re-runs the logout check for it.
func (rt *Runtime) SetPath(ctx context.Context, path string) bool {
	path = routing.Normalize(path)
	rt.mu.Lock()
	rt.path = path
	rt.mu.Unlock()
	return rt.logout.Observe(ctx, rt.store.Snapshot(), path)
}

// CompleteSignIn runs the post-auth redirector for the current session.
// hints is consulted before the runtime's own hint source.
func (rt *Runtime) CompleteSignIn(ctx context.Context, hints HintSource) Outcome {
	snap := rt.store.Snapshot()
	out := rt.postAuth.Handle(ctx, snap, Hints(hints, rt.hints))
	if out.Role != "" {
		rt.mu.Lock()
		rt.sessionID = snap.Session.ID
		rt.mu.Unlock()
		if err := rt.machine.Settle(out.Role); err != nil {
			rt.logger.WarnContext(ctx, "auth phase not settled", "error", err)
		}
	}
	return out
}

func (rt *Runtime) onChange(c Change) {
	rt.mu.Lock()
	ctx, live, path, current := rt.ctx, rt.live, rt.path, rt.sessionID
	rt.mu.Unlock()

	snap := c.Next
	if !live || snap.Loading {
		return
	}

	phase := rt.machine.Phase()
	if snap.User == nil {
		var err error
		if phase.Kind == PhaseAuthenticated {
			err = rt.machine.SignedOut()
		} else {
			err = rt.machine.Settle("")
		}
		if err != nil {
			rt.logger.WarnContext(ctx, "auth phase not settled", "error", err)
		}
		rt.mu.Lock()
		rt.sessionID = ""
		rt.mu.Unlock()
		rt.logout.Observe(ctx, snap, path)
		return
	}

	if phase.Kind == PhaseAuthenticated && current == snap.Session.ID {
		// Same session refreshed or updated: follow the stored role if it moved.
		if r, ok := snap.User.Role(); ok && r != phase.Role {
			_ = rt.machine.Settle(r)
		}
		return
	}

	rt.mu.Lock()
	rt.sessionID = snap.Session.ID
	rt.mu.Unlock()

	var role auth.Role
	if routing.IsEntry(path) {
		role = rt.postAuth.Handle(ctx, snap, rt.hints).Role
	}
	if role == "" {
		role = rt.resolver.Resolve(ctx, *snap.User, Hints(recalledHint{roles: rt.roles, sessionID: snap.Session.ID}, rt.hints))
		if rt.roles != nil {
			rt.roles.RememberRole(ctx, snap.Session.ID, role)
		}
	}
	if err := rt.machine.Settle(role); err != nil {
		rt.logger.WarnContext(ctx, "auth phase not settled", "error", err)
	}
}

// effectiveRole is the stored role, else the role remembered for this
// session, else the default. It is empty without a user.
func (rt *Runtime) effectiveRole(ctx context.Context, snap Snapshot) auth.Role {
	if snap.User == nil {
		return ""
	}
	if r, ok := snap.User.Role(); ok {
		return r
	}
	if rt.roles != nil && snap.Session != nil {
		if r, ok := rt.roles.RecallRole(ctx, snap.Session.ID); ok {
			return r
		}
	}
	return auth.DefaultRole
}

func (rt *Runtime) currentContext() context.Context {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ctx
}

// trackingNavigator records successful navigations as the runtime's path.
type trackingNavigator struct {
	next ports.Navigator
	rt   *Runtime
}

func (n *trackingNavigator) Replace(ctx context.Context, path string) error {
	if err := n.next.Replace(ctx, path); err != nil {
		return err
	}
	n.rt.mu.Lock()
	n.rt.path = routing.Normalize(path)
	n.rt.mu.Unlock()
	return nil
}
