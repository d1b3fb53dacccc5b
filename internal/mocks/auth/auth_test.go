package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

func TestMockOAuthProvider_DeterministicStates(t *testing.T) {
	p := NewMockOAuthProvider()
	url1, state1, nonce1, err := p.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)
	_, state2, _, err := p.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)

	assert.Equal(t, "https://mock-idp/auth?state=state-1", url1)
	assert.Equal(t, "state-1", state1)
	assert.Equal(t, "nonce-1", nonce1)
	assert.Equal(t, "state-2", state2)

	id, err := p.Exchange(context.Background(), ports.ExchangeInput{})
	require.NoError(t, err)
	assert.Equal(t, "mock.user@example.com", id.Email)
}

func TestMemorySessionStore_Binding(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	require.Error(t, s.Save(ctx, domainauth.Session{}))

	require.NoError(t, s.Save(ctx, domainauth.Session{ID: "s1", ClientID: "c"}))
	require.NoError(t, s.Bind(ctx, "c", "s1", time.Hour))
	sid, err := s.Current(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "s1", sid)

	require.NoError(t, s.Unbind(ctx, "c"))
	sid, _ = s.Current(ctx, "c")
	assert.Empty(t, sid)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMemoryAttemptStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore()
	require.NoError(t, s.Put(ctx, domainauth.LoginAttempt{ID: "a1", RoleHint: domainauth.RoleAdmin}, time.Minute))
	assert.Equal(t, 1, s.Len())

	a, err := s.Consume(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, a.RoleHint)
	_, err = s.Consume(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLocalStore_TakeAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLocalStore()
	require.NoError(t, s.Set(ctx, "c", "loginRole", "business"))
	require.NoError(t, s.Set(ctx, "c", "studentSubmissionId", "x"))

	v, ok, err := s.Take(ctx, "c", "loginRole")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "business", v)
	_, ok, _ = s.Get(ctx, "c", "loginRole")
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx, "c"))
	_, ok, _ = s.Get(ctx, "c", "studentSubmissionId")
	assert.False(t, ok)
}

func TestMemoryEventBus_ScopedDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryEventBus()
	var got []uint64
	unsub, err := b.Subscribe(ctx, "c", func(ev domainauth.SessionEvent) { got = append(got, ev.Revision) })
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("c"))

	r1, _ := b.NextRevision(ctx, "c")
	require.NoError(t, b.Publish(ctx, "c", domainauth.SessionEvent{Revision: r1}))
	require.NoError(t, b.Publish(ctx, "other", domainauth.SessionEvent{Revision: 99}))
	unsub()
	unsub()
	r2, _ := b.NextRevision(ctx, "c")
	require.NoError(t, b.Publish(ctx, "c", domainauth.SessionEvent{Revision: r2}))

	assert.Equal(t, []uint64{1}, got)
	assert.Equal(t, 0, b.Subscribers("c"))
	rev, _ := b.Revision(ctx, "c")
	assert.Equal(t, uint64(2), rev)
}

func TestMemoryIdentityRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryIdentityRepository()

	ident, err := r.Create(ctx, "A@Example.com", map[string]string{"role": "student"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", ident.Email)

	_, err = r.Create(ctx, "a@example.com", nil)
	assert.ErrorIs(t, err, ports.ErrAlreadyExists)

	merged, err := r.MergeMetadata(ctx, ident.ID, map[string]string{"role": "admin", "x": "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"role": "admin", "x": "y"}, merged.Metadata)
	assert.Equal(t, 1, r.Merges)

	// Returned identities are copies.
	merged.Metadata["role"] = "student"
	again, err := r.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", again.Metadata["role"])

	_, err = r.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorders(t *testing.T) {
	ctx := context.Background()
	m := NewRecordingMailer()
	require.NoError(t, m.SendSignInLink(ctx, "a@example.com", "https://x/link"))
	assert.Equal(t, "https://x/link", m.Link("a@example.com"))

	n := &RecordingNavigator{}
	require.NoError(t, n.Replace(ctx, "/"))
	require.NoError(t, n.Replace(ctx, "/login"))
	assert.Equal(t, []string{"/", "/login"}, n.Calls())
}
