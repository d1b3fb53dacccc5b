package httpx

import (
	"net/http"
	"strings"
	"time"
)

// ClientCookieName carries the opaque client scope ID.
const ClientCookieName = "portal_client"

const clientCookieMaxAge = 400 * 24 * time.Hour

// CookieConfig controls attributes shared by the cookies we set.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure attribute; otherwise it follows the request scheme.
	Secure bool
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// clear expires a cookie, mirroring the attributes used when it was set so
// every browser honours the deletion.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
