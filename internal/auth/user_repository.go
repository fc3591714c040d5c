package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
	SetActive(ctx context.Context, username string, active bool) error
}

// SQLiteUserRepository stores accounts in the users table.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const selectUsers = `SELECT id, username, display_name, password_hash, role, is_active, created_at, updated_at FROM users`

// Create validates and inserts user, filling in ID and timestamps.
// A taken username returns ErrUsernameExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	switch {
	case !IsValidUsername(user.Username):
		return fmt.Errorf("%w: username %q", ErrInvalidUser, user.Username)
	case !IsValidRole(user.Role):
		return fmt.Errorf("%w: role %q", ErrInvalidUser, user.Role)
	}
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, password_hash, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.DisplayName, user.PasswordHash,
		string(user.Role), user.IsActive,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintUnique) || isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
		return ErrUsernameExists
	}
	if err != nil {
		return fmt.Errorf("creating user %s: %w", user.Username, err)
	}
	return nil
}

// GetByID returns the account whose ID appears in state contexts.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByUsername returns the account used to log in as username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, "username", username)
}

func (r *SQLiteUserRepository) getOne(ctx context.Context, column, value string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, selectUsers+" WHERE "+column+" = ?", value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// List returns every account, oldest first.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, selectUsers+" ORDER BY created_at, username")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Count returns the number of accounts, active or not.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// SetActive enables or disables login for username. Deactivated users
// keep their ID, so their names still resolve in state contexts.
func (r *SQLiteUserRepository) SetActive(ctx context.Context, username string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_active = ?, updated_at = ? WHERE username = ?",
		active, formatTime(now()), username,
	)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                    User
		role                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash,
		&role, &u.IsActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Role = Role(role)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// parseTime reads timestamps written by formatTime; anything else is zero.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}
