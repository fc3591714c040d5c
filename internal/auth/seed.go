package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// Logger is the logging interface used by SeedAdmin.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SeedAdmin creates an initial admin account on first boot if no users
// exist. The generated password is logged once and returned; it must be
// changed. Returns "" if seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, logger Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	buf := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(buf)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", admin.Username,
		"password", password,
		"action_required", "store this password securely",
	)
	return password, nil
}
