// Package testdb creates migrated throwaway databases for tests.
package testdb

import (
	"path/filepath"
	"testing"

	"github.com/fetcharr/fetcharr/internal/database"
	"github.com/fetcharr/fetcharr/internal/store"
)

// New opens a fresh migrated SQLite database under t.TempDir.
func New(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return store.New(db.Conn())
}
