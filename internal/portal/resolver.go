package portal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/observability/metrics"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// DefaultMetadataWriteTimeout bounds the background role write-back.
const DefaultMetadataWriteTimeout = 5 * time.Second

// HintSource yields a pre-authentication role hint. TakeRoleHint removes the
// hint it returns; a second call reports nothing.
type HintSource interface {
	TakeRoleHint(ctx context.Context) (auth.Role, bool)
}

// NoHint is a HintSource that never has a hint.
type NoHint struct{}

func (NoHint) TakeRoleHint(context.Context) (auth.Role, bool) { return "", false }

// AttemptHint reads the hint carried by a consumed login attempt.
type AttemptHint struct {
	once sync.Once
	role auth.Role
}

// NewAttemptHint wraps the role hint of a login attempt.
func NewAttemptHint(a auth.LoginAttempt) *AttemptHint {
	return &AttemptHint{role: a.RoleHint}
}

func (h *AttemptHint) TakeRoleHint(context.Context) (auth.Role, bool) {
	var (
		role auth.Role
		ok   bool
	)
	h.once.Do(func() {
		role, ok = h.role, h.role.Valid()
	})
	return role, ok
}

// LocalHint takes the loginRole entry from a client's local store.
type LocalHint struct {
	Store    ports.LocalStore
	ClientID string
	Logger   *slog.Logger
}

func (h LocalHint) TakeRoleHint(ctx context.Context) (auth.Role, bool) {
	if h.Store == nil || h.ClientID == "" {
		return "", false
	}
	v, ok, err := h.Store.Take(ctx, h.ClientID, auth.LocalKeyLoginRole)
	if err != nil {
		if h.Logger != nil {
			h.Logger.WarnContext(ctx, "reading local role hint failed", "error", err)
		}
		return "", false
	}
	if !ok {
		return "", false
	}
	return auth.ParseRole(v)
}

// RoleMemory keeps the role resolved for a session so later loads on the same
// client can authorize with it before the write-back reaches the identity.
type RoleMemory interface {
	RememberRole(ctx context.Context, sessionID string, role auth.Role)
	RecallRole(ctx context.Context, sessionID string) (auth.Role, bool)
}

// LocalRoles is a RoleMemory backed by a client's local store. Only the
// latest session is kept; a recall for any other session reports nothing.
type LocalRoles struct {
	Store    ports.LocalStore
	ClientID string
	Logger   *slog.Logger
}

func (m LocalRoles) RememberRole(ctx context.Context, sessionID string, role auth.Role) {
	if m.Store == nil || m.ClientID == "" || sessionID == "" || !role.Valid() {
		return
	}
	if err := m.Store.Set(ctx, m.ClientID, auth.LocalKeySessionRole, sessionID+":"+string(role)); err != nil && m.Logger != nil {
		m.Logger.WarnContext(ctx, "remembering session role failed", "session_id", sessionID, "error", err)
	}
}

func (m LocalRoles) RecallRole(ctx context.Context, sessionID string) (auth.Role, bool) {
	if m.Store == nil || m.ClientID == "" || sessionID == "" {
		return "", false
	}
	v, ok, err := m.Store.Get(ctx, m.ClientID, auth.LocalKeySessionRole)
	if err != nil {
		if m.Logger != nil {
			m.Logger.WarnContext(ctx, "reading session role failed", "error", err)
		}
		return "", false
	}
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(v, ':')
	if i < 0 || v[:i] != sessionID {
		return "", false
	}
	return auth.ParseRole(v[i+1:])
}

// recalledHint offers the role remembered for a session. It is bound to the
// session rather than single use, so taking it leaves it in place.
type recalledHint struct {
	roles     RoleMemory
	sessionID string
}

func (h recalledHint) TakeRoleHint(ctx context.Context) (auth.Role, bool) {
	if h.roles == nil {
		return "", false
	}
	return h.roles.RecallRole(ctx, h.sessionID)
}

// Hints takes from every source and returns the first valid hint.
// All sources are drained so no stale hint survives the resolution.
func Hints(sources ...HintSource) HintSource {
	return hintChain(sources)
}

type hintChain []HintSource

func (c hintChain) TakeRoleHint(ctx context.Context) (auth.Role, bool) {
	var (
		found auth.Role
		ok    bool
	)
	for _, src := range c {
		if src == nil {
			continue
		}
		if r, valid := src.TakeRoleHint(ctx); valid && !ok {
			found, ok = r, true
		}
	}
	return found, ok
}

// ResolverOptions groups dependencies for Resolver.
type ResolverOptions struct {
	Provider     ports.IdentityProvider // Required: receives role write-backs
	Logger       *slog.Logger           // Optional
	Metrics      statsd.Sink            // Optional
	WriteTimeout time.Duration          // Optional: defaults to DefaultMetadataWriteTimeout
}

// Resolver derives a user's effective role and persists it to the provider.
type Resolver struct {
	provider ports.IdentityProvider
	logger   *slog.Logger
	metrics  statsd.Sink
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultMetadataWriteTimeout
	}
	return &Resolver{
		provider: opts.Provider,
		logger:   logger.With("component", "role_resolver"),
		metrics:  opts.Metrics,
		timeout:  timeout,
	}, nil
}

// Resolve returns the role for ident. A role already stored on the identity
// wins; otherwise the hint applies; otherwise the default. The hint is taken
// exactly once either way. When the result differs from the stored role it is
// written back in the background and Resolve does not wait for it.
func (r *Resolver) Resolve(ctx context.Context, ident auth.Identity, hints HintSource) auth.Role {
	if hints == nil {
		hints = NoHint{}
	}
	hint, hasHint := hints.TakeRoleHint(ctx)
	stored, hasStored := ident.Role()

	var role auth.Role
	switch {
	case hasStored:
		role = stored
		if hasHint && hint != stored {
			r.logger.InfoContext(ctx, "role hint ignored, identity already has a role",
				"identity_id", ident.ID, "role", stored, "hint", hint)
		}
	case hasHint:
		role = hint
	default:
		role = auth.DefaultRole
	}

	if !hasStored {
		r.writeBack(ctx, ident.ID, role)
	}
	return role
}

// Wait blocks until all pending write-backs have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) writeBack(ctx context.Context, identityID string, role auth.Role) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		patch := map[string]string{auth.MetadataRoleKey: string(role)}
		if err := r.provider.UpdateIdentityMetadata(wctx, patch); err != nil {
			r.logger.WarnContext(wctx, "role write-back failed",
				"identity_id", identityID, "role", role, "error", err)
			metrics.EmitAuth(r.metrics, metrics.AuthMetric{
				Name: "portal.role_writeback", Result: metrics.ResultFailure, Role: string(role), Err: err,
			})
			return
		}
		metrics.EmitAuth(r.metrics, metrics.AuthMetric{
			Name: "portal.role_writeback", Result: metrics.ResultSuccess, Role: string(role),
		})
	}()
}
