package registry

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
	_ "github.com/nerrad567/entity-manager/migrations"
)

// testDB opens an in-memory database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db := testDB(t)
	return New(NewSQLiteEntityRepository(db), NewSQLiteCatalogRepository(db))
}

func strPtr(s string) *string { return &s }
