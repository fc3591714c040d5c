package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser identifies a person in state contexts but cannot call the API.
	RoleUser Role = "user"

	// RoleAdmin may run every entity manager command.
	RoleAdmin Role = "admin"
)

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account. Its ID is the user_id recorded in state
// contexts.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUser        = errors.New("invalid user")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
