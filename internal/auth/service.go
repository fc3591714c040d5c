package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service authenticates operators and issues access tokens.
type Service struct {
	users  UserRepository
	secret string
	ttl    time.Duration
}

// NewService creates an authentication service.
//
// Parameters:
//   - users: Account store
//   - secret: HS256 signing secret
//   - ttl: Access token lifetime
func NewService(users UserRepository, secret string, ttl time.Duration) *Service {
	return &Service{users: users, secret: secret, ttl: ttl}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	User        *User     `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Login verifies a username and password and issues an access token.
// Unknown users and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	token, err := GenerateAccessToken(user, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}

	ttl := s.ttl
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		User:        user,
		IssuedAt:    time.Now().UTC(),
	}, nil
}

// Authorize parses a token and requires the admin role.
func (s *Service) Authorize(token string) (*CustomClaims, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	return claims, nil
}

// Directory resolves user IDs to display names.
type Directory struct {
	users UserRepository
}

// NewDirectory creates a user directory over the account store.
func NewDirectory(users UserRepository) *Directory {
	return &Directory{users: users}
}

// DisplayName returns the display name of a user. It returns
// ErrUserNotFound for unknown IDs.
func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}
