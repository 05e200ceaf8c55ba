package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20261001090000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	writeMigration(t, dir, "20261001090000_dup.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\n")
	writeMigration(t, dir, "AddTill.sql", "-- +goose Up\n")
	writeMigration(t, dir, "20261001090100_empty_up.sql", "-- +goose Up\n\n-- +goose Down\nDROP TABLE x;\n")
	writeMigration(t, dir, "20261001090200_unbalanced.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	writeMigration(t, dir, "notes.txt", "ignored")

	err := ValidateDir(dir)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.ErrorContains(t, err, "duplicate migration version 20261001090000")
	assert.ErrorContains(t, err, `invalid migration filename "AddTill.sql"`)
	assert.ErrorContains(t, err, "empty Up section")
	assert.ErrorContains(t, err, "unbalanced StatementBegin/StatementEnd")
}

func TestValidateDirAcceptsGeneratedMigration(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateSQLMigration(dir, "add till sessions")
	require.NoError(t, err)
	assert.NoError(t, ValidateDir(dir))
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20261001090300")
	require.NoError(t, err)
	assert.Equal(t, int64(20261001090300), v)

	for _, raw := range []string{"", "2026", "2026100109030x"} {
		_, err := ParseVersion(raw)
		assert.Error(t, err, raw)
	}
}
