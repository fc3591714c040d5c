package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migration filename format: YYYYMMDD_HHMMSS_description.{up,down}.sql
const (
	migrationFilenameParts = 3
	minVersionParts        = 2
)

// ErrNoMigrationsApplied is returned by MigrateDown when nothing can be rolled back.
var ErrNoMigrationsApplied = errors.New("database: no migrations applied")

// MigrationsFS holds the migration files. The migrations package sets it
// from its embedded directory at init time; tests may substitute any fs.FS.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing migration files.
var MigrationsDir = "."

// Migration is a single schema migration loaded from MigrationsFS.
type Migration struct {
	// Version is the timestamp prefix, e.g. 20260301_100000.
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus describes one known migration and whether it is applied.
type MigrationStatus struct {
	Version   string
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrate applies all pending migrations in version order.
//
// Each migration runs in its own transaction. If migration N fails,
// migrations before it stay committed, N is rolled back, and nothing after
// N is attempted. Re-running Migrate continues from N.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int: Number of migrations applied
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) (int, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return count, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
		count++
	}

	return count, nil
}

// MigrateDown rolls back the most recently applied migration.
//
// Returns:
//   - Migration: The migration that was rolled back
//   - error: ErrNoMigrationsApplied, or a failure executing the down SQL
func (db *DB) MigrateDown(ctx context.Context) (Migration, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return Migration{}, fmt.Errorf("creating migrations table: %w", err)
	}

	var latest string
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), '') FROM schema_migrations",
	).Scan(&latest)
	if err != nil {
		return Migration{}, fmt.Errorf("querying latest migration: %w", err)
	}
	if latest == "" {
		return Migration{}, ErrNoMigrationsApplied
	}

	migrations, err := loadMigrations()
	if err != nil {
		return Migration{}, fmt.Errorf("loading migrations: %w", err)
	}

	idx := sort.Search(len(migrations), func(i int) bool {
		return migrations[i].Version >= latest
	})
	if idx == len(migrations) || migrations[idx].Version != latest {
		return Migration{}, fmt.Errorf("migration %s not found in filesystem", latest)
	}
	m := migrations[idx]
	if m.DownSQL == "" {
		return Migration{}, fmt.Errorf("migration %s has no down SQL", latest)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Migration{}, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		return Migration{}, fmt.Errorf("executing down SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
		return Migration{}, fmt.Errorf("removing migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Migration{}, fmt.Errorf("committing rollback: %w", err)
	}
	return m, nil
}

// Status lists every migration found in MigrationsFS, oldest first, marking
// which ones are applied.
func (db *DB) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		st := MigrationStatus{Version: m.Version, Name: m.Name}
		if at, ok := applied[m.Version]; ok {
			st.Applied = true
			st.AppliedAt = at
		}
		out = append(out, st)
	}
	return out, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// appliedVersions maps applied migration versions to their apply time.
func (db *DB) appliedVersions(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version, appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		at, _ := time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // Format is controlled
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// loadMigrations reads MigrationsFS and returns migrations sorted by version.
// An unset filesystem or missing directory yields no migrations.
func loadMigrations() ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading migrations dir: %w", err)
	}

	upFiles := make(map[string]string)
	downFiles := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, isUp, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if isUp {
			upFiles[version] = entry.Name()
		} else {
			downFiles[version] = entry.Name()
		}
	}

	migrations := make([]Migration, 0, len(upFiles))
	for version, upFile := range upFiles {
		m, err := readMigration(version, upFile, downFiles[version])
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename extracts version and direction from a migration filename.
func parseMigrationFilename(name string) (version string, isUp bool, ok bool) {
	base, found := strings.CutSuffix(name, ".sql")
	if !found {
		return "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		isUp = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", false, false
	}

	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) < minVersionParts {
		return "", false, false
	}

	return parts[0] + "_" + parts[1], isUp, true
}

func readMigration(version, upFile, downFile string) (Migration, error) {
	upSQL, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, upFile))
	if err != nil {
		return Migration{}, fmt.Errorf("reading %s: %w", upFile, err)
	}

	m := Migration{
		Version: version,
		Name:    extractMigrationName(upFile),
		UpSQL:   string(upSQL),
	}

	if downFile != "" {
		downSQL, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, downFile))
		if err != nil {
			return Migration{}, fmt.Errorf("reading %s: %w", downFile, err)
		}
		m.DownSQL = string(downSQL)
	}

	return m, nil
}

// extractMigrationName returns the description part of a migration filename.
// Example: "20260301_100000_initial_schema.up.sql" -> "initial_schema"
func extractMigrationName(filename string) string {
	base := strings.TrimSuffix(filename, ".sql")
	base = strings.TrimSuffix(base, ".up")
	base = strings.TrimSuffix(base, ".down")

	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) >= migrationFilenameParts {
		return parts[minVersionParts]
	}
	return base
}
