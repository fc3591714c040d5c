// Package database provides SQLite connectivity for the entity manager.
//
// The registries (entities, devices, areas, labels, config entries), the
// state store, users and the audit trail all live in one SQLite file opened
// through this package.
//
// This package manages:
//   - Connection setup with foreign keys, busy timeout and optional WAL
//   - A single pooled connection, so writes are serialised
//   - Versioned up/down migrations read from an fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Tests open database.MemoryPath to get a private in-memory database.
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Each migration is applied in its own transaction.
package database
