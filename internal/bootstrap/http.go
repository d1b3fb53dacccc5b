package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/reachcapital/portal/config"
	httpx "github.com/reachcapital/portal/internal/http"
	"github.com/reachcapital/portal/internal/observability/statsd"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// BuildHandler builds the portal router with health checks over the live connections.
func BuildHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("http server config is required")
	}
	appCfg := cfg.Config
	return httpx.NewRouter(httpx.RouterServices{
		Auth:   cfg.Services.Auth,
		Local:  cfg.Services.Local,
		Gate:   cfg.Services.Gate,
		Health: HealthChecks(cfg.DB, cfg.RedisClient),
		Cookies: httpx.CookieConfig{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.SecureCookies(),
		},
		Metrics:           cfg.Metrics,
		IsDev:             appCfg.IsDev,
		Logger:            cfg.Logger,
		HeartbeatInterval: appCfg.Session.HeartbeatInterval,
		RefreshInterval:   appCfg.Session.RefreshInterval,
	})
}

// HealthChecks probes the connections the portal cannot serve without.
func HealthChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// NewHTTPServer returns a server whose request contexts are cancelled when
// shutdown begins, so long-lived event streams end instead of holding it open.
func NewHTTPServer(addr string, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

// Serve listens on srv.Addr and runs srv until ctx is done, then shuts it
// down within timeout.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return ServeListener(ctx, srv, ln, timeout, logger)
}

// ServeListener is Serve over an existing listener.
func ServeListener(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutdown http server: %w", shutdownErr)
		}
		logger.Info("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
