package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationsSortsSQLFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "README.md", "0001_a.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700))

	names, err := listMigrations(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, names)
}

func TestListMigrationsMissingDir(t *testing.T) {
	_, err := listMigrations(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
