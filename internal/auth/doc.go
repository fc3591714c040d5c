// Package auth authenticates the operators who drive the entity manager
// and doubles as the user directory that names the people behind state
// changes.
//
// It provides:
//   - Argon2id password hashing
//   - HS256 JWT access tokens carrying the user's role
//   - A SQLite user repository
//   - Directory, which resolves a user ID to a display name
//
// Every command mutates the platform's registries, so the API only
// admits callers whose token carries the admin role.
package auth
