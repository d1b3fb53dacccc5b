package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
	apperrors "github.com/reachcapital/portal/internal/errors"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/portal"
	"github.com/reachcapital/portal/internal/ports"
	"github.com/reachcapital/portal/internal/service"
)

// AuthService is the part of service.AuthService the HTTP layer uses.
type AuthService interface {
	EmailLinksEnabled() bool
	OAuthProviders() []string
	Client(clientID string) *service.ClientSession
}

var _ AuthService = (*service.AuthService)(nil)

// AuthHandlers provides HTTP handlers for sign-in, callback and sign-out.
type AuthHandlers struct {
	Auth    AuthService
	Local   ports.LocalStore
	Pages   *TemplateRenderer
	Metrics statsd.Sink
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) client(r *http.Request) *service.ClientSession {
	id, _ := ClientIDFromContext(r.Context())
	return h.Auth.Client(id)
}

// LoginEmail mails a magic link.
// POST /auth/login/email (form: email, role, redirect_uri).
func (h *AuthHandlers) LoginEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, loginView{Error: "We couldn't read that form. Please try again."})
		return
	}
	view := loginView{
		Email:       strings.TrimSpace(r.PostForm.Get("email")),
		RoleHint:    parseHint(r.PostForm.Get("role")),
		RedirectURI: routing.SafeRedirectPath(r.PostForm.Get("redirect_uri")),
	}

	err := h.client(r).SignInWithEmailLink(r.Context(), ports.EmailLinkInput{
		Email:          view.Email,
		RedirectTarget: view.RedirectURI,
		RoleHint:       view.RoleHint,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "email sign-in failed", "error", err)
		view.Error = userMessage(err)
		h.renderLogin(w, r, statusFor(err), view)
		return
	}
	view.Notice = "Check your inbox for a sign-in link."
	h.renderLogin(w, r, http.StatusOK, view)
}

// LoginOAuth starts a provider redirect.
// GET /auth/login/oauth?provider=<name>&role=<hint>&redirect_uri=<path>.
func (h *AuthHandlers) LoginOAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := loginView{
		RoleHint:    parseHint(q.Get("role")),
		RedirectURI: routing.SafeRedirectPath(q.Get("redirect_uri")),
	}

	start, err := h.client(r).SignInWithOAuth(r.Context(), ports.OAuthInput{
		Provider:       q.Get("provider"),
		RedirectTarget: view.RedirectURI,
		RoleHint:       view.RoleHint,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "oauth sign-in failed", "provider", q.Get("provider"), "error", err)
		view.Error = userMessage(err)
		h.renderLogin(w, r, statusFor(err), view)
		return
	}
	if IsHTMX(r) {
		SetHXRedirect(w, start.AuthURL)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, start.AuthURL, http.StatusSeeOther)
}

// Callback completes either sign-in flow and sends the user to their portal.
// GET /auth/callback?token=<jwt> or ?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := h.client(r)

	res, err := client.ExchangeAuthCodeForSession(ctx, r.URL)
	if err != nil {
		h.logger().WarnContext(ctx, "sign-in callback failed", "client_id", client.ClientID(), "error", err)
		h.renderLogin(w, r, statusFor(err), loginView{Error: userMessage(err)})
		return
	}

	nav := &redirectNavigator{}
	rt, err := portal.NewRuntime(portal.RuntimeOptions{
		Provider:  client,
		Navigator: nav,
		Hints:     portal.LocalHint{Store: h.Local, ClientID: client.ClientID(), Logger: h.logger()},
		Roles:     portal.LocalRoles{Store: h.Local, ClientID: client.ClientID(), Logger: h.logger()},
		Path:      routing.PathAuthCallback,
		Logger:    h.logger(),
		Metrics:   h.Metrics,
	})
	if err != nil {
		h.logger().ErrorContext(ctx, "build runtime failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if _, err = rt.Load(ctx); err != nil {
		h.logger().ErrorContext(ctx, "load session failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	out := rt.CompleteSignIn(ctx, portal.NewAttemptHint(res.Attempt))
	if !out.Navigated {
		// The session vanished between exchange and load; return to where sign-in started.
		replaceLocation(w, r, routing.SafeRedirectPath(res.Attempt.RedirectURI))
		return
	}
	to, _ := nav.Target()
	replaceLocation(w, r, to)
}

// Logout signs the client out and lands on the signed-out page.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	client := h.client(r)
	if err := client.SignOut(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "client_id", client.ClientID(), "error", err)
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": routing.PathSignedOut,
		})
		return
	}
	replaceLocation(w, r, routing.PathSignedOut)
}

// statusResponse is the body of GET /auth/status.
type statusResponse struct {
	Authenticated bool              `json:"authenticated"`
	Revision      uint64            `json:"revision"`
	User          *statusUser       `json:"user,omitempty"`
	Provider      string            `json:"provider,omitempty"`
	ExpiresAt     string            `json:"expires_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type statusUser struct {
	ID    string          `json:"id"`
	Email string          `json:"email"`
	Role  domainauth.Role `json:"role"`
}

// Status returns the client's current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.client(r).CurrentSession(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "status lookup failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: err})
		return
	}
	resp := statusResponse{Revision: state.Revision}
	if s := state.Session; s != nil {
		role, ok := s.Identity.Role()
		if !ok {
			role = domainauth.DefaultRole
		}
		resp.Authenticated = true
		resp.User = &statusUser{ID: s.Identity.ID, Email: s.Identity.Email, Role: role}
		resp.Provider = s.Provider
		resp.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
		resp.Metadata = s.Identity.Metadata
	}
	WriteJSON(w, http.StatusOK, resp)
}

// loginView carries the login form state between a failed call and its re-render.
type loginView struct {
	Error       string
	Notice      string
	Email       string
	RoleHint    domainauth.Role
	RedirectURI string
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, v loginView) {
	data := loginPageData(h.Auth, v)
	data.Path = routing.PathLogin
	data.CSRFToken = CSRFToken(r)
	if err := h.Pages.Render(w, status, PageLogin, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render login failed", "error", err)
		http.Error(w, v.Error, status)
	}
}

func loginPageData(auth AuthService, v loginView) PageData {
	return PageData{
		Title:        "Sign in",
		Error:        v.Error,
		Notice:       v.Notice,
		Email:        v.Email,
		RoleHint:     v.RoleHint,
		RedirectURI:  v.RedirectURI,
		EmailEnabled: auth.EmailLinksEnabled(),
		Providers:    auth.OAuthProviders(),
	}
}

// parseHint accepts only known roles; anything else means no hint.
func parseHint(raw string) domainauth.Role {
	role, ok := domainauth.ParseRole(raw)
	if !ok {
		return ""
	}
	return role
}

func userMessage(err error) string {
	return apperrors.UserMessage(err, "Something went wrong. Please try again.")
}
