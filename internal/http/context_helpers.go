package httpx

import (
	"context"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/portal"
)

// Unexported context key types avoid collisions across packages.
type (
	clientKey   struct{}
	snapshotKey struct{}
	roleKey     struct{}
)

// WithClientID returns a child context carrying the client scope ID.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKey{}, clientID)
}

// ClientIDFromContext returns the client scope ID set by ClientScope.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientKey{}).(string)
	return id, ok && id != ""
}

// withSnapshot stores the session snapshot the guard loaded for this request.
func withSnapshot(ctx context.Context, snap portal.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// SnapshotFromContext returns the guard's snapshot for the request.
func SnapshotFromContext(ctx context.Context) (portal.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey{}).(portal.Snapshot)
	return snap, ok
}

// withRole stores the role the guard authorized the request with.
func withRole(ctx context.Context, role domainauth.Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext returns the guard's role for the request.
func RoleFromContext(ctx context.Context) (domainauth.Role, bool) {
	role, ok := ctx.Value(roleKey{}).(domainauth.Role)
	return role, ok && role != ""
}
