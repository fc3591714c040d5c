package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore implements Store using the states table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed state store.
//
// Parameters:
//   - db: Open SQLite connection with the states table migrated
//
// Returns:
//   - *SQLiteStore: Store instance ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

const stateColumns = `entity_id, state, attributes, context_id, context_user_id,
	context_parent_id, last_changed, last_updated`

// Get returns the snapshot for one entity.
func (s *SQLiteStore) Get(ctx context.Context, entityID string) (*State, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+stateColumns+" FROM states WHERE entity_id = ?", entityID)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("querying state %s: %w", entityID, err)
	}
	return st, nil
}

// ListDomain returns every snapshot in a domain ordered by entity_id.
func (s *SQLiteStore) ListDomain(ctx context.Context, domain string) ([]State, error) {
	// Domains may contain "_", which LIKE treats as a wildcard.
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+stateColumns+` FROM states WHERE entity_id LIKE ? ESCAPE '\' ORDER BY entity_id`,
		escapeLike(domain)+".%",
	)
	if err != nil {
		return nil, fmt.Errorf("listing states for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return out, nil
}

// Upsert stores a snapshot. A zero LastUpdated becomes now. A zero
// LastChanged keeps the previous value when the state string is
// unchanged, and becomes now otherwise.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - st: Snapshot to persist; EntityID is required
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) Upsert(ctx context.Context, st *State) error {
	if st.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}

	now := s.now().UTC()
	if st.LastUpdated.IsZero() {
		st.LastUpdated = now
	}
	if st.LastChanged.IsZero() {
		st.LastChanged = st.LastUpdated
		prev, err := s.Get(ctx, st.EntityID)
		switch {
		case err == nil && prev.State == st.State:
			st.LastChanged = prev.LastChanged
		case err != nil && !errors.Is(err, ErrStateNotFound):
			return err
		}
	}

	attrs := st.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO states (`+stateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			state = excluded.state, attributes = excluded.attributes,
			context_id = excluded.context_id, context_user_id = excluded.context_user_id,
			context_parent_id = excluded.context_parent_id,
			last_changed = excluded.last_changed, last_updated = excluded.last_updated`,
		st.EntityID, st.State, string(attrsJSON),
		st.Context.ID, nullable(st.Context.UserID), nullable(st.Context.ParentID),
		st.LastChanged.UTC().Format(time.RFC3339Nano), st.LastUpdated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing state %s: %w", st.EntityID, err)
	}
	return nil
}

// Delete removes the snapshot for entityID.
func (s *SQLiteStore) Delete(ctx context.Context, entityID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM states WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("deleting state %s: %w", entityID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(scanner rowScanner) (*State, error) {
	var st State
	var attrsJSON, lastChanged, lastUpdated string
	var userID, parentID sql.NullString

	err := scanner.Scan(&st.EntityID, &st.State, &attrsJSON, &st.Context.ID,
		&userID, &parentID, &lastChanged, &lastUpdated)
	if err != nil {
		return nil, err
	}

	st.Context.UserID = userID.String
	st.Context.ParentID = parentID.String
	if err := json.Unmarshal([]byte(attrsJSON), &st.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshalling attributes: %w", err)
	}
	st.LastChanged, _ = time.Parse(time.RFC3339Nano, lastChanged) //nolint:errcheck // format is controlled
	st.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated) //nolint:errcheck // format is controlled
	return &st, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
