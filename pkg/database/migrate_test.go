package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_SortedSQLOnly(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	assert.Equal(t, "001_reels.sql", names[0])
	for i, n := range names {
		assert.True(t, strings.HasSuffix(n, ".sql"), n)
		if i > 0 {
			assert.Less(t, names[i-1], n)
		}
	}
}

func TestReelsMigration_CreatesTable(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_reels.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "CREATE TABLE IF NOT EXISTS reels")
	assert.Contains(t, string(sql), "voiceover_url")
}
