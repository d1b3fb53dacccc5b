// Package mocks provides gomock implementations of the portal's ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	provider := mocks.NewMockIdentityProvider(ctrl)
//	provider.EXPECT().CurrentSession(gomock.Any()).Return(auth.SessionState{}, nil)
package mocks

// Generate mocks for the client-facing provider ports:
// IdentityProvider, Navigator, Mailer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/reachcapital/portal/internal/ports IdentityProvider,Navigator,Mailer
