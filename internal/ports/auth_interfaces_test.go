package ports_test

import (
	"testing"

	mocks "github.com/reachcapital/portal/internal/mocks/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.OAuthProvider = (*mocks.MockOAuthProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.LoginAttemptStore = (*mocks.MemoryAttemptStore)(nil)
	var _ ports.LocalStore = (*mocks.MemoryLocalStore)(nil)
	var _ ports.EventBus = (*mocks.MemoryEventBus)(nil)
	var _ ports.IdentityRepository = (*mocks.MemoryIdentityRepository)(nil)
	var _ ports.Navigator = (*mocks.RecordingNavigator)(nil)
}
