package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
)

// StudentDestination picks a student's landing page.
type StudentDestination interface {
	Destination(ctx context.Context, clientID string, ident domainauth.Identity) (string, error)
}

// PageHandlers renders the portal's pages. The Guard middleware has already
// decided the request may render and put the session snapshot on the context.
type PageHandlers struct {
	Auth   AuthService
	Pages  *TemplateRenderer
	Gate   StudentDestination // Optional: without it students see the form
	Logger *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// data builds the shared view model for the request's session.
func (h *PageHandlers) data(r *http.Request, title string) PageData {
	path := routing.Normalize(r.URL.Path)
	d := PageData{
		Title:     title,
		Path:      path,
		Live:      true,
		EventsURL: "/auth/events?" + url.Values{"path": {path}}.Encode(),
		CSRFToken: CSRFToken(r),
	}
	if snap, ok := SnapshotFromContext(r.Context()); ok && snap.User != nil {
		d.User = snap.User
		d.Role = domainauth.DefaultRole
		if role, ok := RoleFromContext(r.Context()); ok {
			d.Role = role
		}
		d.Destination = routing.Destination(d.Role)
	}
	return d
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, page string, data PageData) {
	if err := h.Pages.Render(w, http.StatusOK, page, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render page failed", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Home renders the landing page. GET /.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PageHome, h.data(r, "Reach Capital"))
}

// Login renders the sign-in page. The role query picks which portal the
// user came from; it becomes the hint for a first sign-in.
// GET /login?role=<hint>&redirect_uri=<path>.
func (h *PageHandlers) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := loginView{
		RoleHint:    parseHint(q.Get("role")),
		RedirectURI: routing.SafeRedirectPath(q.Get("redirect_uri")),
	}
	d := loginPageData(h.Auth, view)
	base := h.data(r, d.Title)
	d.Path, d.Live, d.EventsURL, d.CSRFToken = base.Path, base.Live, base.EventsURL, base.CSRFToken
	h.render(w, r, PageLogin, d)
}

// Form renders the public application form. GET /form.
func (h *PageHandlers) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PageForm, h.data(r, "Apply"))
}

// Submitted renders the thank-you page. GET /submitted.
func (h *PageHandlers) Submitted(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PageSubmitted, h.data(r, "Submitted"))
}

// SignedOut renders the post-logout page. GET /auth/signed-out.
func (h *PageHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	d := h.data(r, "Signed out")
	d.Live = false
	h.render(w, r, PageSignedOut, d)
}

// StudentPortal forwards a student to their submission or to the form.
// GET /student-portal.
func (h *PageHandlers) StudentPortal(w http.ResponseWriter, r *http.Request) {
	d := h.data(r, "Student portal")
	if d.User == nil || h.Gate == nil {
		h.render(w, r, PageStudentForm, d)
		return
	}
	clientID, _ := ClientIDFromContext(r.Context())
	to, err := h.Gate.Destination(r.Context(), clientID, *d.User)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		h.logger().ErrorContext(r.Context(), "student destination failed", "error", err)
		http.Error(w, "We couldn't load your application. Please try again.", http.StatusServiceUnavailable)
		return
	}
	replaceLocation(w, r, to)
}

// BusinessPortal renders the business portal. GET /business-portal.
func (h *PageHandlers) BusinessPortal(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PagePortal, h.data(r, "Business portal"))
}

// AdminPortal renders the admin portal. GET /admin-portal.
func (h *PageHandlers) AdminPortal(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PagePortal, h.data(r, "Admin portal"))
}

// StudentForm renders the prompt to start an application. GET /student-form.
func (h *PageHandlers) StudentForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, PageStudentForm, h.data(r, "Your application"))
}

// Student renders one submission. GET /student/{id}.
func (h *PageHandlers) Student(w http.ResponseWriter, r *http.Request) {
	d := h.data(r, "Your application")
	d.SubmissionID = r.PathValue("id")
	h.render(w, r, PageStudent, d)
}

// NotFound sends unknown paths home without leaving them in history.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	replaceLocation(w, r, routing.PathHome)
}
