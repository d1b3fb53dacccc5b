package httpx

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/portal"
	"github.com/reachcapital/portal/internal/ports"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working through the logging wrapper.
func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientScope assigns every browser a stable client ID in the portal_client
// cookie and puts it on the request context. Sessions, local storage and the
// live event channel are all keyed by it.
func ClientScope(cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if c, err := r.Cookie(ClientCookieName); err == nil {
				if id, parseErr := uuid.Parse(c.Value); parseErr == nil {
					clientID = id.String()
				}
			}
			if clientID == "" {
				clientID = uuid.NewString()
				cookies.set(w, r, ClientCookieName, clientID, clientCookieMaxAge)
			}
			next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), clientID)))
		})
	}
}

// GuardConfig groups dependencies for the Guard middleware.
type GuardConfig struct {
	Auth    AuthService      // Required
	Local   ports.LocalStore // Optional: source of the loginRole hint
	Logger  *slog.Logger     // Optional
	Metrics statsd.Sink      // Optional
}

// Guard hosts a one-shot portal runtime for every page request. It loads the
// client's session once, applies the route guard and role authorization, runs
// the logout redirector for the requested path and, on /login with a live
// session, sends the user on to their portal.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "route_guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isPageRequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientID, ok := ClientIDFromContext(ctx)
			if !ok {
				http.Error(w, "missing client scope", http.StatusInternalServerError)
				return
			}

			path := routing.Normalize(r.URL.Path)
			nav := &redirectNavigator{}
			rt, err := portal.NewRuntime(portal.RuntimeOptions{
				Provider:  cfg.Auth.Client(clientID),
				Navigator: nav,
				Hints:     portal.LocalHint{Store: cfg.Local, ClientID: clientID, Logger: logger},
				Roles:     portal.LocalRoles{Store: cfg.Local, ClientID: clientID, Logger: logger},
				Path:      path,
				Logger:    logger,
				Metrics:   cfg.Metrics,
			})
			if err != nil {
				logger.ErrorContext(ctx, "build runtime failed", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			snap, err := rt.Load(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "load session failed", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			decision := rt.Guard(path)
			switch {
			case decision.Redirects():
				count(cfg.Metrics, "portal.guard_redirect", map[string]string{"action": decision.Action.String()})
				logger.DebugContext(ctx, "guard redirect", "path", path, "to", decision.Location)
				replaceLocation(w, r, decision.Location)
				return
			case decision.Action == routing.Wait:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Loading", http.StatusServiceUnavailable)
				return
			}

			if rt.SetPath(ctx, path) {
				if to, navigated := nav.Target(); navigated {
					replaceLocation(w, r, to)
					return
				}
			}

			if snap.Authenticated() && path == routing.PathLogin {
				if out := rt.CompleteSignIn(ctx, nil); out.Navigated {
					replaceLocation(w, r, out.Destination)
					return
				}
			}

			ctx = withRole(withSnapshot(ctx, snap), rt.Phase().Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isPageRequest reports whether r is a page load the route guard should see.
// Auth endpoints, static assets and probes are not pages.
func isPageRequest(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/static/"), p == "/healthz":
		return false
	case strings.HasPrefix(p, "/auth/"):
		return p == routing.PathSignedOut
	default:
		return true
	}
}

func count(m statsd.Sink, name string, tags map[string]string) {
	if m != nil {
		m.Count(name, 1, tags)
	}
}
