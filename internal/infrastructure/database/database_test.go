package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens an in-memory database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

		db, err := Open(context.Background(), Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		// Force the file to exist.
		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("in-memory database keeps data", func(t *testing.T) {
		db := openTestDB(t)
		ctx := context.Background()

		if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
			t.Fatalf("insert: %v", err)
		}

		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Errorf("count = %d, want 1", n)
		}
	})

	t.Run("foreign keys enforced", func(t *testing.T) {
		db := openTestDB(t)
		ctx := context.Background()

		var on int
		if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("pragma: %v", err)
		}
		if on != 1 {
			t.Errorf("foreign_keys = %d, want 1", on)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckAfterClose(t *testing.T) {
	db, err := Open(context.Background(), Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.Close() //nolint:errcheck // Closing before the check is the point

	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on closed DB should fail")
	}
}

func TestBeginTxRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count after rollback = %d, want 0", n)
	}
}

func TestExecContextWrapsError(t *testing.T) {
	db := openTestDB(t)

	_, err := db.ExecContext(context.Background(), "INSERT INTO missing (id) VALUES (1)")
	if err == nil {
		t.Fatal("ExecContext() on missing table should fail")
	}
}
