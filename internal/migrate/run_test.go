package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedAndEmbedded(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_identities.sql", files[0])
	assert.IsIncreasing(t, files)

	for _, f := range files {
		b, readErr := migrationsFS.ReadFile("migrations/" + f)
		require.NoError(t, readErr)
		assert.NotEmpty(t, b, f)
	}
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0002_submissions", version("0002_submissions.sql"))
}
