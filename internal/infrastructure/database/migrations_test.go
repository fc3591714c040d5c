package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/20260118_120000_create_items.up.sql": {
			Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);"),
		},
		"m/20260118_120000_create_items.down.sql": {
			Data: []byte("DROP TABLE items;"),
		},
		"m/20260119_090000_add_tags.up.sql": {
			Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY);"),
		},
		"m/20260119_090000_add_tags.down.sql": {
			Data: []byte("DROP TABLE tags;"),
		},
		"m/README.md": {Data: []byte("ignored")},
	}
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations(), "m")
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}
	if !tableExists(t, db, "items") || !tableExists(t, db, "tags") {
		t.Error("expected items and tags tables")
	}

	// Second run is a no-op.
	n, err = db.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied %d, want 0", n)
	}
}

func TestMigrateFailureRollsBackThatMigration(t *testing.T) {
	fsys := testMigrations()
	fsys["m/20260120_000000_broken.up.sql"] = &fstest.MapFile{
		Data: []byte("CREATE TABLE broken (id TEXT); INSERT INTO nowhere VALUES (1);"),
	}
	useMigrations(t, fsys, "m")
	db := openTestDB(t)

	n, err := db.Migrate(context.Background())
	if err == nil {
		t.Fatal("Migrate() should fail on broken migration")
	}
	if n != 2 {
		t.Errorf("applied before failure = %d, want 2", n)
	}
	if tableExists(t, db, "broken") {
		t.Error("broken migration should have been rolled back")
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrations(), "m")
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	m, err := db.MigrateDown(ctx)
	if err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if m.Version != "20260119_090000" || m.Name != "add_tags" {
		t.Errorf("rolled back %s (%s), want 20260119_090000 (add_tags)", m.Version, m.Name)
	}
	if tableExists(t, db, "tags") {
		t.Error("tags table should have been dropped")
	}
	if !tableExists(t, db, "items") {
		t.Error("items table should remain")
	}

	if _, err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if _, err := db.MigrateDown(ctx); !errors.Is(err, ErrNoMigrationsApplied) {
		t.Errorf("MigrateDown() on empty = %v, want ErrNoMigrationsApplied", err)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	n, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
	if n != 0 {
		t.Errorf("applied = %d, want 0", n)
	}
}

func TestStatus(t *testing.T) {
	fsys := testMigrations()
	useMigrations(t, fsys, "m")
	db := openTestDB(t)
	ctx := context.Background()

	// Apply only the first migration.
	delete(fsys, "m/20260119_090000_add_tags.up.sql")
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	fsys["m/20260119_090000_add_tags.up.sql"] = &fstest.MapFile{
		Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY);"),
	}

	status, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status) != 2 {
		t.Fatalf("len(Status()) = %d, want 2", len(status))
	}
	if !status[0].Applied || status[0].AppliedAt.IsZero() {
		t.Errorf("first migration should be applied with timestamp: %+v", status[0])
	}
	if status[1].Applied {
		t.Errorf("second migration should be pending: %+v", status[1])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"valid up migration", "20260118_120000_create_users.up.sql", "20260118_120000", true, true},
		{"valid down migration", "20260118_120000_create_users.down.sql", "20260118_120000", false, true},
		{"not sql file", "readme.txt", "", false, false},
		{"missing direction", "20260118_120000_create_users.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260118_120000_create_users.up.sql", "create_users"},
		{"20260301_100000_initial_schema.down.sql", "initial_schema"},
		{"20260118_120000_add_email_to_users.up.sql", "add_email_to_users"},
	}

	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
