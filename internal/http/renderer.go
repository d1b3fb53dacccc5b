package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
)

// Page names map one-to-one onto templates in the template FS.
const (
	PageHome        = "home"
	PageLogin       = "login"
	PageForm        = "form"
	PageSubmitted   = "submitted"
	PageSignedOut   = "signed_out"
	PagePortal      = "portal"
	PageStudentForm = "student_form"
	PageStudent     = "student"
	PageLoading     = "loading"
)

var pageNames = []string{
	PageHome, PageLogin, PageForm, PageSubmitted, PageSignedOut,
	PagePortal, PageStudentForm, PageStudent, PageLoading,
}

// PageData is the view model shared by every page.
type PageData struct {
	Title       string
	Path        string
	User        *domainauth.Identity
	Role        domainauth.Role
	Destination string
	CSRFToken   string

	// Live pages open the session event stream.
	Live      bool
	EventsURL string

	// Login page.
	Error        string
	Notice       string
	Email        string
	RoleHint     domainauth.Role
	RedirectURI  string
	EmailEnabled bool
	Providers    []string

	SubmissionID string
}

// TemplateRenderer renders full HTML pages.
type TemplateRenderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Required: layout.tmpl plus one file per page
	Logger     *slog.Logger // Optional
}

// NewTemplateRenderer parses the layout once and clones it per page so every
// page can define its own "title" and "content" blocks.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base, err := template.New("root").ParseFS(cfg.TemplateFS, "layout.tmpl")
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err), slog.String("template", "layout"))
		return nil, err
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, cloneErr := base.Clone()
		if cloneErr != nil {
			return nil, cloneErr
		}
		if _, err = clone.ParseFS(cfg.TemplateFS, name+".tmpl"); err != nil {
			logger.Error("template parsing failed", slog.Any("error", err), slog.String("template", name))
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &TemplateRenderer{pages: pages, logger: logger}, nil
}

// Render writes page with status. Output is buffered so a template error never
// leaves a half-written page behind.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", slog.String("template", page), slog.Any("error", err))
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template", slog.String("template", page), slog.Any("error", err))
		return err
	}
	return nil
}
