package portal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// LogoutRedirector moves signed-out users off protected paths.
type LogoutRedirector struct {
	nav     ports.Navigator
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewLogoutRedirector constructs a LogoutRedirector. logger and metrics may be nil.
func NewLogoutRedirector(nav ports.Navigator, logger *slog.Logger, metrics statsd.Sink) (*LogoutRedirector, error) {
	if nav == nil {
		return nil, errors.New("navigator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogoutRedirector{nav: nav, logger: logger.With("component", "logout_redirector"), metrics: metrics}, nil
}

// Observe replaces the location with home when path is protected, the store
// has settled, and nobody is signed in. It reports whether it navigated.
func (l *LogoutRedirector) Observe(ctx context.Context, snap Snapshot, path string) bool {
	if snap.Loading || snap.User != nil || !routing.IsProtected(path) {
		return false
	}
	if err := l.nav.Replace(ctx, routing.PathHome); err != nil {
		l.logger.WarnContext(ctx, "logout navigation failed", "path", path, "error", err)
		return false
	}
	if l.metrics != nil {
		l.metrics.Count("portal.logout_redirect", 1, nil)
	}
	l.logger.DebugContext(ctx, "left protected path after sign-out", "path", path)
	return true
}
