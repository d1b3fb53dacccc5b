// Package routing classifies application paths and decides navigation for a session.
// Everything here is pure so it can be exercised without a live identity provider.
package routing

import (
	"net/url"
	"path"
	"strings"

	"github.com/reachcapital/portal/internal/domain/auth"
)

// Application paths.
const (
	PathHome           = "/"
	PathLogin          = "/login"
	PathForm           = "/form"
	PathSubmitted      = "/submitted"
	PathAuthCallback   = "/auth/callback"
	PathSignedOut      = "/auth/signed-out"
	PathStudentPortal  = "/student-portal"
	PathBusinessPortal = "/business-portal"
	PathAdminPortal    = "/admin-portal"
	PathStudentForm    = "/student-form"
	PathStudentPrefix  = "/student/"
)

// Class is the static classification of a path.
type Class int

const (
	ClassUnknown Class = iota
	ClassPublic
	ClassProtected
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassProtected:
		return "protected"
	default:
		return "unknown"
	}
}

var publicPaths = map[string]struct{}{
	PathHome:         {},
	PathLogin:        {},
	PathForm:         {},
	PathSubmitted:    {},
	PathAuthCallback: {},
	PathSignedOut:    {},
}

// portalPaths redirect home (not to login) when reached without a session.
var portalPaths = map[string]struct{}{
	PathStudentPortal:  {},
	PathBusinessPortal: {},
	PathAdminPortal:    {},
}

// Normalize cleans p and strips a trailing slash so "/login/" and "/login" classify alike.
func Normalize(p string) string {
	if p == "" {
		return PathHome
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Classify returns the static class of p. Paths the application doesn't serve are ClassUnknown.
func Classify(p string) Class {
	p = Normalize(p)
	if _, ok := publicPaths[p]; ok {
		return ClassPublic
	}
	if _, ok := portalPaths[p]; ok {
		return ClassProtected
	}
	if p == PathStudentForm {
		return ClassProtected
	}
	if id, ok := StudentSubmissionID(p); ok && id != "" {
		return ClassProtected
	}
	return ClassUnknown
}

// IsProtected reports whether p requires a session.
func IsProtected(p string) bool { return Classify(p) == ClassProtected }

// IsPortal reports whether p is one of the three portal entry paths.
func IsPortal(p string) bool {
	_, ok := portalPaths[Normalize(p)]
	return ok
}

// IsEntry reports whether p is a public entry path where a freshly hydrated session
// should be sent on to its portal.
func IsEntry(p string) bool {
	p = Normalize(p)
	return p == PathLogin || p == PathAuthCallback
}

// StudentSubmissionID extracts {id} from /student/{id}.
func StudentSubmissionID(p string) (string, bool) {
	p = Normalize(p)
	if !strings.HasPrefix(p, PathStudentPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(p, PathStudentPrefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// StudentPath builds /student/{id}.
func StudentPath(id string) string {
	return PathStudentPrefix + url.PathEscape(id)
}

// Destination maps a resolved role to its portal entry path.
func Destination(role auth.Role) string {
	switch role {
	case auth.RoleStudent:
		return PathStudentPortal
	case auth.RoleBusiness:
		return PathBusinessPortal
	case auth.RoleAdmin:
		return PathAdminPortal
	default:
		return PathHome
	}
}

// LoginURL builds the login path that returns to redirect after sign-in.
func LoginURL(redirect string) string {
	if redirect == "" || redirect == PathHome {
		return PathLogin
	}
	q := url.Values{}
	q.Set("redirect_uri", redirect)
	return PathLogin + "?" + q.Encode()
}

// SafeRedirectPath ensures candidate is a same-origin relative path starting with "/".
// Returns "/" when invalid.
func SafeRedirectPath(candidate string) string {
	if candidate == "" {
		return PathHome
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return PathHome
	}
	return candidate
}
