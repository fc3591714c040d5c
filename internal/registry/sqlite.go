package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableEnum stores the None variant of an enumerated field as NULL.
func nullableEnum(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}

// labelsFor runs a single-column label query and returns the IDs in order.
func labelsFor(ctx context.Context, q queryer, query, ownerID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning label: %w", err)
		}
		labels = append(labels, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating labels: %w", err)
	}
	return labels, nil
}

// replaceLabels rewrites the label assignments of one owner. table and
// column are package constants, never caller input.
func replaceLabels(ctx context.Context, tx *sql.Tx, table, column, ownerID string, labels []string) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column) //nolint:gosec // table and column are constants
	if _, err := tx.ExecContext(ctx, del, ownerID); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	ins := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, label_id, position) VALUES (?, ?, ?)", table, column) //nolint:gosec // table and column are constants
	for i, label := range labels {
		if _, err := tx.ExecContext(ctx, ins, ownerID, label, i); err != nil {
			return fmt.Errorf("inserting %s: %w", table, err)
		}
	}
	return nil
}
