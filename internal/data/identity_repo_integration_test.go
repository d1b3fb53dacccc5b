package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/testutil"
)

func TestIdentityRepo_Integration_CreateAndLookup(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		repo := NewIdentityRepoWithClock(db, FixedClock(created))
		ctx := context.Background()

		ident, err := repo.Create(ctx, " Founder@Startup.IO ", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, ident.ID)
		assert.Equal(t, "founder@startup.io", ident.Email)
		assert.Nil(t, ident.Metadata)
		assert.True(t, ident.CreatedAt.Equal(created))

		byEmail, err := repo.GetByEmail(ctx, "FOUNDER@startup.io")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, byEmail.ID)

		byID, err := repo.GetByID(ctx, ident.ID)
		require.NoError(t, err)
		assert.Equal(t, ident.Email, byID.Email)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrIdentityNotFound)
	})
}

func TestIdentityRepo_Integration_DuplicateEmail(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIdentityRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, "dup@example.com", nil)
		require.NoError(t, err)
		_, err = repo.Create(ctx, "DUP@example.com", nil)
		assert.ErrorIs(t, err, ErrIdentityExists)
	})
}

func TestIdentityRepo_Integration_ConcurrentCreateSameEmail(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIdentityRepo(db)
		create := func() error {
			_, err := repo.Create(context.Background(), "race@example.com", nil)
			return err
		}
		errs := testutil.RunConcurrently(create, create, create, create)

		var ok, dup int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrIdentityExists):
				dup++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 3, dup)
	})
}

func TestIdentityRepo_Integration_MergeMetadata(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIdentityRepo(db)
		ctx := context.Background()

		ident, err := repo.Create(ctx, "merge@example.com", map[string]string{"cohort": "2025"})
		require.NoError(t, err)

		updated, err := repo.MergeMetadata(ctx, ident.ID, map[string]string{"role": "business"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"cohort": "2025", "role": "business"}, updated.Metadata)

		role, ok := updated.Role()
		assert.True(t, ok)
		assert.Equal(t, domainauth.RoleBusiness, role)

		_, err = repo.MergeMetadata(ctx, "00000000-0000-0000-0000-000000000000", map[string]string{"role": "admin"})
		assert.ErrorIs(t, err, ErrIdentityNotFound)
	})
}

func TestIdentityRepo_Integration_SetRole(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIdentityRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, "ops@example.com", map[string]string{"role": "student"})
		require.NoError(t, err)

		ident, err := repo.SetRole(ctx, "ops@example.com", domainauth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, "admin", ident.Metadata["role"])

		_, err = repo.SetRole(ctx, "ops@example.com", domainauth.Role("owner"))
		assert.Error(t, err)

		_, err = repo.SetRole(ctx, "nobody@example.com", domainauth.RoleAdmin)
		assert.ErrorIs(t, err, ErrIdentityNotFound)
	})
}

func TestSubmissionRepo_Integration_LatestByEmail(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSubmissionRepo(db)
		ctx := context.Background()

		_, err := repo.LatestIDByEmail(ctx, "student@example.com")
		require.ErrorIs(t, err, ErrSubmissionNotFound)

		first, err := repo.Create(ctx, "Student@Example.com")
		require.NoError(t, err)
		got, err := repo.LatestIDByEmail(ctx, "student@example.com")
		require.NoError(t, err)
		assert.Equal(t, first, got)

		_, err = repo.LatestIDByEmail(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmailRequired)
	})
}
