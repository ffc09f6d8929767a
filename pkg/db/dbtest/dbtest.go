// Package dbtest opens throwaway in-memory SQLite stores with the real
// migrations applied.
package dbtest

import (
	"context"
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/config"
	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/migrate"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a migrated client backed by a private in-memory database.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := "file:tl_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(context.Background(), sqlDB, config.DBDriverSQLite, migrate.DefaultDir, "up"); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	// mirror the production sqlite setup: one connection, serialized writers
	sqlDB.SetMaxOpenConns(1)

	return db.Wrap(conn, config.DBDriverSQLite)
}
