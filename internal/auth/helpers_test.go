package auth

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

// seedTestUser inserts a user with password "test-password".
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  "Display " + username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Info(string, ...any)       {}
func (l *recordingLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }
