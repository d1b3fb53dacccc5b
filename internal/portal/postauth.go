package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// Outcome reports what the post-auth redirector did.
type Outcome struct {
	Role        auth.Role
	Destination string
	Navigated   bool
}

// PostAuthOptions groups dependencies for PostAuth.
type PostAuthOptions struct {
	Resolver  *Resolver       // Required
	Navigator ports.Navigator // Required
	Roles     RoleMemory      // Optional: keeps the resolved role for later loads
	Logger    *slog.Logger    // Optional
	Metrics   statsd.Sink     // Optional
}

// PostAuth sends a freshly signed-in user to their portal, once per session.
type PostAuth struct {
	resolver *Resolver
	nav      ports.Navigator
	roles    RoleMemory
	logger   *slog.Logger
	metrics  statsd.Sink

	mu      sync.Mutex
	handled string
}

// NewPostAuth constructs a PostAuth redirector.
func NewPostAuth(opts PostAuthOptions) (*PostAuth, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("navigator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PostAuth{
		resolver: opts.Resolver,
		nav:      opts.Navigator,
		roles:    opts.Roles,
		logger:   logger.With("component", "post_auth"),
		metrics:  opts.Metrics,
	}, nil
}

// Handle resolves the role for the signed-in user, remembers it for the
// session and replaces the current location with their portal. It does nothing while loading, without a user,
// or for a session it has already handled.
func (p *PostAuth) Handle(ctx context.Context, snap Snapshot, hints HintSource) Outcome {
	if snap.Loading || snap.User == nil || snap.Session == nil {
		return Outcome{}
	}

	p.mu.Lock()
	if p.handled == snap.Session.ID {
		p.mu.Unlock()
		return Outcome{}
	}
	p.handled = snap.Session.ID
	p.mu.Unlock()

	if p.roles != nil {
		hints = Hints(recalledHint{roles: p.roles, sessionID: snap.Session.ID}, hints)
	}
	role := p.resolver.Resolve(ctx, *snap.User, hints)
	if p.roles != nil {
		p.roles.RememberRole(ctx, snap.Session.ID, role)
	}
	dest := routing.Destination(role)

	out := Outcome{Role: role, Destination: dest}
	if err := p.nav.Replace(ctx, dest); err != nil {
		p.logger.WarnContext(ctx, "post-auth navigation failed",
			"destination", dest, "session_id", snap.Session.ID, "error", err)
		return out
	}
	out.Navigated = true

	if p.metrics != nil {
		p.metrics.Count("portal.post_auth_redirect", 1, map[string]string{"role": string(role)})
	}
	p.logger.InfoContext(ctx, "post-auth redirect",
		"identity_id", snap.User.ID, "role", role, "destination", dest)
	return out
}
