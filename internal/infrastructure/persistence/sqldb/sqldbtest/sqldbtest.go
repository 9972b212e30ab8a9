// Package sqldbtest opens throwaway migrated databases for tests.
package sqldbtest

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// New opens a migrated sqlite database under t.TempDir
func New(t testing.TB) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	raw, err := database.New(database.Config{
		Driver: string(database.DialectSQLite),
		Path:   filepath.Join(t.TempDir(), "approval.db"),
	}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	if err := database.NewMigrator(raw, logger).Run(migrations.FS); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	return sqldb.NewDB(raw, logger)
}
