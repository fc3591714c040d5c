package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/entity-manager/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// contextKey is a private type for context keys set by this package.
type contextKey string

// ctxKeyClaims is the context key for the caller's token claims.
const ctxKeyClaims contextKey = "claims"

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue stores a new ticket for userID and returns it.
func (ts *ticketStore) issue(userID string) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{userID: userID, expiresAt: time.Now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

// consume checks if a ticket is valid and removes it (single-use).
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(ts.tickets, ticket)
	return entry, time.Now().Before(entry.expiresAt)
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// handleLogin authenticates a user and returns a JWT access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
		s.logger.Warn("login rejected", "username", req.Username, "error", err)
		writeUnauthorized(w, "invalid credentials")
		return
	default:
		s.logger.Error("login failed", "username", req.Username, "error", err)
		writeInternalError(w, "failed to log in")
		return
	}

	s.logger.Info("user logged in", "username", req.Username, "user_id", result.User.ID)
	writeJSON(w, http.StatusOK, result)
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket := s.tickets.issue(claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// authMiddleware requires a valid admin access token in the
// Authorization header and stores its claims in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := s.auth.Authorize(token)
		if err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				writeError(w, http.StatusForbidden, ErrCodeForbidden, "admin role required")
				return
			}
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the claims stored by authMiddleware, or nil.
func claimsFrom(ctx context.Context) *auth.CustomClaims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.CustomClaims) //nolint:errcheck // nil when unauthenticated
	return claims
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
