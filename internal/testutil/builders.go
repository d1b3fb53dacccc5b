package testutil

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
)

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SessionBuilder provides a fluent interface for building sessions in tests.
type SessionBuilder struct {
	s domainauth.Session
}

// NewSession creates a SessionBuilder for an email-link session that expires in an hour.
func NewSession() *SessionBuilder {
	return &SessionBuilder{s: domainauth.Session{
		ID:       uuid.NewString(),
		ClientID: uuid.NewString(),
		Identity: domainauth.Identity{
			ID:        uuid.NewString(),
			Email:     "student@example.com",
			CreatedAt: TestTime(),
		},
		Provider:  domainauth.ProviderEmail,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
}

// WithID sets the session ID.
func (b *SessionBuilder) WithID(id string) *SessionBuilder {
	b.s.ID = id
	return b
}

// WithClient sets the owning client ID.
func (b *SessionBuilder) WithClient(clientID string) *SessionBuilder {
	b.s.ClientID = clientID
	return b
}

// WithEmail sets the identity email, lower-cased as the provider would store it.
func (b *SessionBuilder) WithEmail(email string) *SessionBuilder {
	b.s.Identity.Email = strings.ToLower(email)
	return b
}

// WithRole stores role in the identity metadata.
func (b *SessionBuilder) WithRole(role domainauth.Role) *SessionBuilder {
	return b.WithMetadata(domainauth.MetadataRoleKey, string(role))
}

// WithMetadata sets a raw metadata entry, including malformed values.
func (b *SessionBuilder) WithMetadata(key, value string) *SessionBuilder {
	if b.s.Identity.Metadata == nil {
		b.s.Identity.Metadata = map[string]string{}
	}
	b.s.Identity.Metadata[key] = value
	return b
}

// WithProvider sets the sign-in method.
func (b *SessionBuilder) WithProvider(p string) *SessionBuilder {
	b.s.Provider = p
	return b
}

// ExpiringAt sets the expiry.
func (b *SessionBuilder) ExpiringAt(t time.Time) *SessionBuilder {
	b.s.ExpiresAt = t
	return b
}

// Build returns a deep copy of the session.
func (b *SessionBuilder) Build() domainauth.Session {
	out := b.s
	out.Identity = b.s.Identity.Clone()
	return out
}

// BuildPtr returns a pointer to a deep copy of the session.
func (b *SessionBuilder) BuildPtr() *domainauth.Session {
	s := b.Build()
	return &s
}
