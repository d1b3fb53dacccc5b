package routing

import (
	"strings"

	"github.com/reachcapital/portal/internal/domain/auth"
)

// Action is the outcome of a guard decision.
type Action int

const (
	// Render lets the page render.
	Render Action = iota
	// Wait renders only a neutral loading indicator; never redirects.
	Wait
	// RedirectToLogin sends the user to the login page with a return path.
	RedirectToLogin
	// RedirectHome sends the user to the home page.
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Wait:
		return "wait"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decision is what the guard wants done for a path.
// Location is set for redirects; From preserves the attempted path for a later return.
type Decision struct {
	Action   Action
	Location string
	From     string
}

// Redirects reports whether the decision navigates away.
func (d Decision) Redirects() bool {
	return d.Action == RedirectToLogin || d.Action == RedirectHome
}

// Decide is the route guard. It never redirects while loading and never lets a
// protected path render without a session.
func Decide(p string, session *auth.Session, loading bool) Decision {
	if loading {
		return Decision{Action: Wait}
	}
	p = Normalize(p)
	if session != nil || Classify(p) != ClassProtected {
		return Decision{Action: Render}
	}
	if IsPortal(p) {
		return Decision{Action: RedirectHome, Location: PathHome, From: p}
	}
	return Decision{Action: RedirectToLogin, Location: LoginURL(p), From: p}
}

// Authorize checks that role may view an already-authenticated protected path.
// Admins may view every portal; everyone else is sent to their own portal.
func Authorize(p string, role auth.Role) Decision {
	p = Normalize(p)
	if Classify(p) != ClassProtected || role == auth.RoleAdmin {
		return Decision{Action: Render}
	}
	if owner, ok := owningRole(p); ok && owner != role {
		return Decision{Action: RedirectHome, Location: Destination(role), From: p}
	}
	return Decision{Action: Render}
}

func owningRole(p string) (auth.Role, bool) {
	switch {
	case p == PathAdminPortal:
		return auth.RoleAdmin, true
	case p == PathBusinessPortal:
		return auth.RoleBusiness, true
	case p == PathStudentPortal, p == PathStudentForm, strings.HasPrefix(p, PathStudentPrefix):
		return auth.RoleStudent, true
	default:
		return "", false
	}
}
