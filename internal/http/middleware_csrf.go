package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// CSRFCookieName holds the double-submit token.
	CSRFCookieName = "portal_csrf"
	// CSRFFieldName is the form field forms echo the token in.
	CSRFFieldName = "csrf_token"
	// CSRFHeaderName is the header htmx requests echo the token in.
	CSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes  = 32
	csrfTokenMaxAge = 12 * time.Hour
)

type csrfTokenKey struct{}

// CSRFProtection guards state-changing requests with the double-submit cookie
// pattern. Safe methods pass and receive a token on the context for templates.
func CSRFProtection(cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				var err error
				if token, err = newCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					Domain:   cookies.Domain,
					HttpOnly: false, // htmx reads it to set the header
					Secure:   cookies.secure(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   int(csrfTokenMaxAge.Seconds()),
				})
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			if !safeMethod(r.Method) && !validCSRF(r, token) {
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the request's token for embedding in forms.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// newCSRFToken fails closed: no token is better than a predictable one.
func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validCSRF(r *http.Request, cookieToken string) bool {
	if cookieToken == "" {
		return false
	}
	submitted := r.Header.Get(CSRFHeaderName)
	if submitted == "" {
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
			if err := r.ParseForm(); err != nil {
				return false
			}
			submitted = r.PostForm.Get(CSRFFieldName)
		}
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) == 1
}
