package portal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/reachcapital/portal/internal/domain/auth"
)

// PhaseKind enumerates the auth lifecycle of a client.
type PhaseKind int

const (
	PhaseInit PhaseKind = iota
	PhaseLoading
	PhaseUnauthenticated
	PhaseAuthenticated
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseInit:
		return "init"
	case PhaseLoading:
		return "loading"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("phase(%d)", int(k))
	}
}

// Phase is the current lifecycle position. Role is set only when Authenticated.
type Phase struct {
	Kind PhaseKind
	Role auth.Role
}

func (p Phase) String() string {
	if p.Kind == PhaseAuthenticated {
		return fmt.Sprintf("authenticated(%s)", p.Role)
	}
	return p.Kind.String()
}

// ErrInvalidTransition is returned when a transition is not allowed from the current phase.
var ErrInvalidTransition = errors.New("invalid auth phase transition")

// Machine tracks Init -> Loading -> {Unauthenticated, Authenticated(role)}.
// Authenticated only returns to Unauthenticated through SignedOut.
type Machine struct {
	mu    sync.Mutex
	phase Phase
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Begin moves Init to Loading.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Kind != PhaseInit {
		return m.invalid("begin")
	}
	m.phase = Phase{Kind: PhaseLoading}
	return nil
}

// Settle records the outcome of a session check. An empty role means no user.
func (m *Machine) Settle(role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase.Kind {
	case PhaseInit:
		return m.invalid("settle")
	case PhaseAuthenticated:
		if role == "" {
			return m.invalid("settle without user")
		}
	case PhaseLoading, PhaseUnauthenticated:
	}

	if role == "" {
		m.phase = Phase{Kind: PhaseUnauthenticated}
		return nil
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTransition, role)
	}
	m.phase = Phase{Kind: PhaseAuthenticated, Role: role}
	return nil
}

// SignedOut moves Authenticated to Unauthenticated. It is a no-op when already signed out.
func (m *Machine) SignedOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase.Kind {
	case PhaseAuthenticated, PhaseUnauthenticated:
		m.phase = Phase{Kind: PhaseUnauthenticated}
		return nil
	default:
		return m.invalid("sign out")
	}
}

func (m *Machine) invalid(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, m.phase)
}
