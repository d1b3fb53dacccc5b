package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/reachcapital/portal/internal/domain/auth"
)

var protectedPaths = []string{
	PathStudentPortal,
	PathBusinessPortal,
	PathAdminPortal,
	PathStudentForm,
	"/student/42",
	"/admin-portal/",
}

var publicPathsList = []string{PathHome, PathLogin, PathForm, PathSubmitted, PathAuthCallback, PathSignedOut}

func testSession() *auth.Session {
	return &auth.Session{ID: "s1", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestDecide_ProtectedWithoutSessionNeverRenders(t *testing.T) {
	for _, p := range protectedPaths {
		d := Decide(p, nil, false)
		assert.NotEqual(t, Render, d.Action, p)
		assert.True(t, d.Redirects(), p)
		assert.NotEmpty(t, d.Location, p)
	}
}

func TestDecide_LoadingAlwaysWaits(t *testing.T) {
	all := append(append([]string{}, protectedPaths...), publicPathsList...)
	all = append(all, "/does-not-exist")
	for _, p := range all {
		for _, s := range []*auth.Session{nil, testSession()} {
			d := Decide(p, s, true)
			assert.Equal(t, Wait, d.Action, p)
			assert.Empty(t, d.Location)
		}
	}
}

func TestDecide_PortalsRedirectHomePreservingPath(t *testing.T) {
	d := Decide(PathAdminPortal, nil, false)
	assert.Equal(t, RedirectHome, d.Action)
	assert.Equal(t, PathHome, d.Location)
	assert.Equal(t, PathAdminPortal, d.From)
}

func TestDecide_NonPortalProtectedRedirectsToLogin(t *testing.T) {
	d := Decide("/student/abc", nil, false)
	assert.Equal(t, RedirectToLogin, d.Action)
	assert.Equal(t, "/login?redirect_uri=%2Fstudent%2Fabc", d.Location)
	assert.Equal(t, "/student/abc", d.From)
}

func TestDecide_RendersPublicAndAuthenticated(t *testing.T) {
	for _, p := range publicPathsList {
		assert.Equal(t, Render, Decide(p, nil, false).Action, p)
	}
	for _, p := range protectedPaths {
		assert.Equal(t, Render, Decide(p, testSession(), false).Action, p)
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		role     auth.Role
		action   Action
		location string
	}{
		{"admin sees business", PathBusinessPortal, auth.RoleAdmin, Render, ""},
		{"business on own portal", PathBusinessPortal, auth.RoleBusiness, Render, ""},
		{"business on admin", PathAdminPortal, auth.RoleBusiness, RedirectHome, PathBusinessPortal},
		{"student on business", PathBusinessPortal, auth.RoleStudent, RedirectHome, PathStudentPortal},
		{"business on student page", "/student/1", auth.RoleBusiness, RedirectHome, PathBusinessPortal},
		{"public path", PathHome, auth.RoleStudent, Render, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.path, tt.role)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.location, d.Location)
		})
	}
}
