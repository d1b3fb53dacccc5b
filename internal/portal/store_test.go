package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcapital/portal/internal/domain/auth"
)

func TestStore_StartsLoading(t *testing.T) {
	s, err := NewStore(StoreOptions{Provider: newFakeProvider()})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.True(t, snap.Loading)
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.User)
}

func TestStore_StartFetchesAndSubscribes(t *testing.T) {
	p := newFakeProvider()
	p.setState(auth.SessionState{Session: newSession("s1", nil), Revision: 3})

	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Session)
	require.NotNil(t, snap.User)
	assert.Equal(t, "s1", snap.Session.ID)
	assert.Equal(t, snap.Session.Identity.ID, snap.User.ID)
	assert.Equal(t, 1, p.subscriberCount())
}

func TestStore_FetchFailureSettlesSignedOut(t *testing.T) {
	p := newFakeProvider()
	p.fetchErr = errors.New("network down")

	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	snap := s.Load(context.Background())

	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
}

func TestStore_StaleFetchDoesNotOverwriteNewerEvent(t *testing.T) {
	p := newFakeProvider()
	// The fetch was issued before a sign-out happened but answers after it.
	p.setState(auth.SessionState{Session: newSession("old", nil), Revision: 4})
	p.beforeDone = func() { p.emit(signedOut(5)) }

	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Session)
	assert.Equal(t, uint64(5), snap.Revision)
}

func TestStore_EventsReplaceSessionAtomically(t *testing.T) {
	p := newFakeProvider()
	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	var changes []Change
	s.Watch(func(c Change) { changes = append(changes, c) })

	p.emit(signedIn(newSession("a", map[string]string{"role": "business"}), 1))
	p.emit(signedIn(newSession("b", nil), 2))
	p.emit(signedIn(newSession("stale", nil), 1))

	require.Len(t, changes, 2)
	assert.Equal(t, auth.EventSignedIn, changes[0].Kind)
	assert.Equal(t, "a", changes[0].Next.Session.ID)
	assert.Equal(t, "a", changes[1].Prev.Session.ID)
	assert.Equal(t, "b", changes[1].Next.Session.ID)
	assert.Equal(t, "b", s.Snapshot().Session.ID)
}

func TestStore_SnapshotIsIsolatedFromProvider(t *testing.T) {
	p := newFakeProvider()
	sess := newSession("s1", map[string]string{"role": "admin"})
	p.setState(auth.SessionState{Session: sess, Revision: 1})

	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	s.Load(context.Background())

	sess.Identity.Metadata["role"] = "student"
	role, ok := s.Snapshot().User.Role()
	assert.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)
}

func TestStore_CloseUnsubscribesOnceAndIgnoresLateUpdates(t *testing.T) {
	p := newFakeProvider()
	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	p.emit(signedIn(newSession("s1", nil), 1))

	// Keep a handle so a late delivery can still reach the store after Close.
	late := s.onEvent

	s.Close()
	s.Close()
	assert.Equal(t, 1, p.unsubs)
	assert.Equal(t, 0, p.subscriberCount())

	late(signedOut(2))
	assert.Equal(t, "s1", s.Snapshot().Session.ID)
}

func TestStore_WatcherAddedDuringNotifySeesOnlyLaterChanges(t *testing.T) {
	p := newFakeProvider()
	s, err := NewStore(StoreOptions{Provider: p})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)

	var late []uint64
	added := false
	s.Watch(func(Change) {
		if added {
			return
		}
		added = true
		s.Watch(func(c Change) { late = append(late, c.Next.Revision) })
	})

	p.emit(signedIn(newSession("s1", nil), 1))
	assert.Empty(t, late, "watcher registered mid-notify misses the in-flight change")

	p.emit(signedOut(2))
	assert.Equal(t, []uint64{2}, late)
}
