package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents the access tier that decides which portal a user reaches.
// Keep string form for easy persistence in identity metadata.
type Role string

const (
	RoleStudent  Role = "student"
	RoleBusiness Role = "business"
	RoleAdmin    Role = "admin"

	// DefaultRole is applied when neither metadata nor a hint provide a role.
	DefaultRole = RoleStudent
)

// MetadataRoleKey is the identity metadata key holding the resolved role.
const MetadataRoleKey = "role"

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleStudent, RoleBusiness, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleBusiness, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is the authenticated user record owned by the identity provider.
// Consumers treat it as a read-only snapshot.
type Identity struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Role returns the role stored in metadata, if present and well-formed.
func (i Identity) Role() (Role, bool) {
	if i.Metadata == nil {
		return "", false
	}
	return ParseRole(i.Metadata[MetadataRoleKey])
}

// Clone returns a deep copy so callers can't mutate a cached snapshot.
func (i Identity) Clone() Identity {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Session is the server-side record we persist for an authenticated client.
// ID is an opaque session identifier carried in the session cookie.
type Session struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Identity  Identity  `json:"identity"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// SessionState is a point-in-time view of a client's session.
// Revision orders states and events for the same client.
type SessionState struct {
	Session  *Session
	Revision uint64
}

// EventKind names a session change delivered on the live stream.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// SessionEvent is one entry on a client's live session stream.
// Session is nil for EventSignedOut.
type SessionEvent struct {
	Kind     EventKind `json:"kind"`
	Session  *Session  `json:"session,omitempty"`
	Revision uint64    `json:"revision"`
	At       time.Time `json:"at"`
}

// State converts the event into the state it announces.
func (e SessionEvent) State() SessionState {
	return SessionState{Session: e.Session, Revision: e.Revision}
}

// Sign-in methods recorded on sessions and login attempts.
const (
	ProviderEmail       = "email"
	ProviderOAuthPrefix = "oauth:"
)

// LoginAttempt is a single-use record created when a sign-in starts.
// It carries the role hint across the provider round trip instead of client storage.
type LoginAttempt struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Email       string    `json:"email,omitempty"`
	Provider    string    `json:"provider"`
	RoleHint    Role      `json:"role_hint,omitempty"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Local storage keys scoped to a client.
const (
	LocalKeyLoginRole           = "loginRole"
	LocalKeyStudentSubmissionID = "studentSubmissionId"
	// LocalKeySessionRole holds "<session id>:<role>" for the role resolved at sign-in.
	LocalKeySessionRole = "sessionRole"
)
