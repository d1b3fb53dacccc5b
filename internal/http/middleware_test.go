package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"msg":"panic"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestLogging_RecordsStatusAndKeepsFlusher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "streaming handlers need a Flusher")
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/tea"`)
}

func TestIsPageRequest(t *testing.T) {
	tests := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/", true},
		{http.MethodHead, "/admin-portal", true},
		{http.MethodGet, "/auth/signed-out", true},
		{http.MethodGet, "/auth/callback", false},
		{http.MethodGet, "/auth/events", false},
		{http.MethodGet, "/static/css/portal.css", false},
		{http.MethodGet, "/healthz", false},
		{http.MethodPost, "/login", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isPageRequest(httptest.NewRequest(tt.method, tt.path, nil)))
		})
	}
}

func TestCSRFProtection(t *testing.T) {
	var seen string
	h := CSRFProtection(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CSRFToken(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("safe method issues token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
		assert.Equal(t, cookies[0].Value, seen)
		assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	})

	post := func(form url.Values, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set(CSRFHeaderName, header)
		}
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, post(url.Values{CSRFFieldName: {"tok"}}, "").Code)
	assert.Equal(t, http.StatusNoContent, post(url.Values{}, "tok").Code)
	assert.Equal(t, http.StatusForbidden, post(url.Values{CSRFFieldName: {"other"}}, "").Code)
	assert.Equal(t, http.StatusForbidden, post(url.Values{}, "").Code)
}

func TestReplaceLocation(t *testing.T) {
	rec := httptest.NewRecorder()
	replaceLocation(rec, httptest.NewRequest(http.MethodGet, "/", nil), "/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Hx-Request", "true")
	rec = httptest.NewRecorder()
	replaceLocation(rec, req, "/login")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Hx-Redirect"))
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	healthy := &HealthHandlers{Checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	}}
	rec := httptest.NewRecorder()
	healthy.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, healthResponse, rec.Body.String())

	rec = httptest.NewRecorder()
	healthy.Health(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())

	degraded := &HealthHandlers{Checks: map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}}
	rec = httptest.NewRecorder()
	degraded.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","failed":["postgres"]}`, rec.Body.String())
}

func TestRedirectNavigator(t *testing.T) {
	var nav redirectNavigator
	_, ok := nav.Target()
	assert.False(t, ok)
	require.NoError(t, nav.Replace(context.Background(), "/a"))
	require.NoError(t, nav.Replace(context.Background(), "/b"))
	to, ok := nav.Target()
	assert.True(t, ok)
	assert.Equal(t, "/b", to)
}
