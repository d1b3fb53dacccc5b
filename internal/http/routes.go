package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	reachportal "github.com/reachcapital/portal"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth    AuthService        // Required
	Local   ports.LocalStore   // Required: role hints for runtimes
	Gate    StudentDestination // Optional
	Health  map[string]HealthCheck
	Cookies CookieConfig
	Metrics statsd.Sink
	IsDev   bool         // Read templates and static files from disk
	Logger  *slog.Logger // Optional
	// Templates overrides the template FS; tests use it.
	Templates fs.FS

	HeartbeatInterval time.Duration
	RefreshInterval   time.Duration
}

// NewRouter builds the portal's handler with its middleware chain:
// Recover → Logging → ClientScope → CSRF → Guard → mux.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templateFS, staticFS, err := assetFS(services)
	if err != nil {
		return nil, err
	}
	pages, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		return nil, err
	}

	authHandlers := &AuthHandlers{
		Auth:    services.Auth,
		Local:   services.Local,
		Pages:   pages,
		Metrics: services.Metrics,
		Logger:  logger,
	}
	eventHandlers := &EventHandlers{
		Auth:              services.Auth,
		Local:             services.Local,
		Metrics:           services.Metrics,
		Logger:            logger,
		HeartbeatInterval: services.HeartbeatInterval,
		RefreshInterval:   services.RefreshInterval,
	}
	pageHandlers := &PageHandlers{Auth: services.Auth, Pages: pages, Gate: services.Gate, Logger: logger}
	health := &HealthHandlers{Checks: services.Health}

	mux := http.NewServeMux()
	registerAuthRoutes(mux, authHandlers, eventHandlers)
	registerPageRoutes(mux, pageHandlers)
	mux.Handle("GET /static/", staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))))
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("HEAD /healthz", health.Health)

	var h http.Handler = mux
	h = Guard(GuardConfig{Auth: services.Auth, Local: services.Local, Logger: logger, Metrics: services.Metrics})(h)
	h = CSRFProtection(services.Cookies)(h)
	h = ClientScope(services.Cookies)(h)
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	return h, nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, ev *EventHandlers) {
	mux.HandleFunc("POST /auth/login/email", h.LoginEmail)
	mux.HandleFunc("GET /auth/login/oauth", h.LoginOAuth)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET /auth/events", ev.Stream)
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /login", h.Login)
	mux.HandleFunc("GET /form", h.Form)
	mux.HandleFunc("GET /submitted", h.Submitted)
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)
	mux.HandleFunc("GET /student-portal", h.StudentPortal)
	mux.HandleFunc("GET /business-portal", h.BusinessPortal)
	mux.HandleFunc("GET /admin-portal", h.AdminPortal)
	mux.HandleFunc("GET /student-form", h.StudentForm)
	mux.HandleFunc("GET /student/{id}", h.Student)
	mux.HandleFunc("/", h.NotFound)
}

// assetFS returns the template and static filesystems: embedded in production,
// on disk in dev so edits show up without a rebuild.
func assetFS(services RouterServices) (fs.FS, fs.FS, error) {
	if services.IsDev {
		templates := services.Templates
		if templates == nil {
			templates = os.DirFS("web/templates")
		}
		return templates, os.DirFS("web/static"), nil
	}
	staticFS, err := fs.Sub(reachportal.StaticFS, "web/static")
	if err != nil {
		return nil, nil, err
	}
	if services.Templates != nil {
		return services.Templates, staticFS, nil
	}
	templateFS, err := fs.Sub(reachportal.TemplateFS, "web/templates")
	if err != nil {
		return nil, nil, err
	}
	return templateFS, staticFS, nil
}

func staticWithCacheHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		handler.ServeHTTP(w, r)
	})
}
