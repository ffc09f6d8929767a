package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationOrdersPastExistingVersions(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "Add Broker Notes", now)
	require.NoError(t, err)
	assert.Equal(t, "20260301090000_add_broker_notes.sql", filepath.Base(first))

	second, err := createSQLMigration(dir, "index sheets", now)
	require.NoError(t, err)
	assert.Equal(t, "20260301090001_index_sheets.sql", filepath.Base(second))

	require.NoError(t, ValidateDir(dir))
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := createSQLMigration(t.TempDir(), " !! ", time.Now())
	require.Error(t, err)
}

func TestValidateDirRejectsNonPortableSQL(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE brokers (id SERIAL PRIMARY KEY);\n-- +goose Down\nDROP TABLE brokers;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_brokers.sql"), []byte(body), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERIAL")
}

func TestValidateDirRejectsBadNamesAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brokers.sql"), body, 0o644))
	require.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_b.sql"), body, 0o644))
	require.Error(t, ValidateDir(dir))
}
