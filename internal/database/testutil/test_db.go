// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database"
)

type schemaLevel int

const (
	schemaNone schemaLevel = iota
	schemaTables
	schemaSeeded
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*schemaLevel)

// WithAutoMigrate creates the tables without seeding roles.
func WithAutoMigrate() TestDBOption {
	return func(level *schemaLevel) { *level = max(*level, schemaTables) }
}

// WithSeedData creates the tables and inserts the default roles.
func WithSeedData() TestDBOption {
	return func(level *schemaLevel) { *level = schemaSeeded }
}

// MustOpenTestDB opens a private in-memory SQLite database that lives until the test
// ends. One pooled connection keeps the shared-cache database alive and serialises writes.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	level := schemaNone
	for _, opt := range opts {
		opt(&level)
	}

	query := url.Values{}
	query.Set("mode", "memory")
	query.Set("cache", "shared")
	query.Set("_foreign_keys", "1")
	query.Set("_txlock", "immediate")
	name := "authcore_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	db, err := database.Open(database.Config{
		Driver:       "sqlite",
		DSN:          "file:" + name + "?" + query.Encode(),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	return prepare(t, db, level)
}

// MustOpenFileDB opens a file-backed SQLite database under t.TempDir through the
// production DSN and the default connection pool, so concurrent callers contend for
// locks the way a deployed server does.
func MustOpenFileDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	level := schemaNone
	for _, opt := range opts {
		opt(&level)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "authcore.db"),
	})
	require.NoError(t, err)
	return prepare(t, db, level)
}

func prepare(t *testing.T, db *gorm.DB, level schemaLevel) *gorm.DB {
	t.Helper()

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	switch level {
	case schemaSeeded:
		require.NoError(t, database.AutoMigrateAndSeed(db))
	case schemaTables:
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}
