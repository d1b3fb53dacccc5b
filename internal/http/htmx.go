package httpx

import (
	"net/http"
	"strings"
)

// IsHTMX reports whether the request was initiated by htmx (Hx-Request: true).
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Hx-Request"), "true")
}

// SetHXRedirect instructs htmx to load the given URL in the browser.
func SetHXRedirect(w http.ResponseWriter, url string) { w.Header().Set("Hx-Redirect", url) }

// SetHXReplaceURL replaces the current history entry with url.
func SetHXReplaceURL(w http.ResponseWriter, url string) { w.Header().Set("Hx-Replace-Url", url) }

// replaceLocation sends the browser to path without leaving the current URL in
// history. Plain requests get 303 See Other; htmx requests get Hx-Redirect
// with Hx-Replace-Url and a 204.
func replaceLocation(w http.ResponseWriter, r *http.Request, path string) {
	if IsHTMX(r) {
		SetHXReplaceURL(w, path)
		SetHXRedirect(w, path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
