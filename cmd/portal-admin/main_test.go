package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
)

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: portal-admin <command> [flags]")
	migrateAt := bytes.Index(buf.Bytes(), []byte("  migrate"))
	setRoleAt := bytes.Index(buf.Bytes(), []byte("  set-role"))
	require.NotEqual(t, -1, migrateAt)
	require.NotEqual(t, -1, setRoleAt)
	assert.Less(t, migrateAt, setRoleAt)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"--status", "--timeout", "30s"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	assert.Error(t, err)
}

func TestParseSetRoleFlags(t *testing.T) {
	opts, err := parseSetRoleFlags([]string{"--email", " ops@reach.example ", "--role", "Admin"})
	require.NoError(t, err)
	assert.Equal(t, "ops@reach.example", opts.Email)
	assert.Equal(t, domainauth.RoleAdmin, opts.Role)

	_, err = parseSetRoleFlags([]string{"--role", "admin"})
	assert.ErrorContains(t, err, "--email is required")

	_, err = parseSetRoleFlags([]string{"--email", "a@example.com", "--role", "owner"})
	assert.ErrorContains(t, err, "--role must be")
}

func TestParseRevokeFlags(t *testing.T) {
	opts, err := parseRevokeFlags([]string{"--client", "7d0e3c8e-2b1f-4a57-9c39-6f1f3c0e5a11"})
	require.NoError(t, err)
	assert.Equal(t, "7d0e3c8e-2b1f-4a57-9c39-6f1f3c0e5a11", opts.ClientID)

	_, err = parseRevokeFlags(nil)
	assert.ErrorContains(t, err, "--client is required")
}

func TestParseSubmissionFlags(t *testing.T) {
	opts, err := parseSubmissionFlags([]string{"--email", "student@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", opts.Email)

	_, err = parseSubmissionFlags([]string{"--email", "  "})
	assert.Error(t, err)
}
