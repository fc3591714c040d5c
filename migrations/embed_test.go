package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down file", base)
		}
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	tables := []string{
		"config_entries", "areas", "labels", "devices", "entities",
		"entity_labels", "device_labels", "states", "users", "audit_logs",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}

	if _, err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'entities'",
	).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Error("entities table still present after MigrateDown")
	}
}
