package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRunAppliesEmbeddedMigrationsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Run(context.Background(), sqlDB, "sqlite", DefaultDir, "up"))

	for _, table := range []string{"inventory_items", "customer_invoices", "vendor_invoices", "commission_sheets", "journal_entries"} {
		assert.Truef(t, conn.Migrator().HasTable(table), "expected table %s", table)
	}

	require.NoError(t, Run(context.Background(), sqlDB, "sqlite", DefaultDir, "down-to", "0"))
	assert.False(t, conn.Migrator().HasTable("inventory_items"))
}

func TestDialect(t *testing.T) {
	d, err := Dialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d)

	d, err = Dialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d)

	_, err = Dialect("mysql")
	assert.Error(t, err)
}

func TestCreateAndValidate(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Sheet Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_sheet_notes.sql"))
	require.NoError(t, ValidateDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestValidateEmbeddedSourceDir(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}
