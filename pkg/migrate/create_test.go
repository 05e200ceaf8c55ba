package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "  Add Layaway Holds! ", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20261002090000_add_layaway_holds.sql"), path)
	require.NoError(t, ValidateDir(dir))
}

func TestCreateSQLMigrationStaysAfterNewestVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20261005120000_create_expenses.sql"),
		[]byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := createSQLMigration(dir, "backfill", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "20261005120001_backfill.sql", filepath.Base(path))
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := createSQLMigration(t.TempDir(), "!!!", time.Now())
	assert.Error(t, err)
}
