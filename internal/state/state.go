// Package state stores the latest state snapshot of each entity, as
// published by the automation platform.
//
// Snapshots feed the automation and template sensor listings, and their
// context identifies what last changed an entity.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrStateNotFound is returned when no snapshot exists for an entity.
var ErrStateNotFound = errors.New("state: not found")

// Context identifies the origin of a state change. UserID is set when a
// person caused it; ParentID when another context (typically an
// automation) did.
type Context struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// State is one entity's latest state snapshot.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	Context     Context        `json:"context"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Attr returns an attribute value, or nil.
func (s *State) Attr(key string) any {
	if s == nil || s.Attributes == nil {
		return nil
	}
	return s.Attributes[key]
}

// AttrString returns a string attribute, or "" if it is missing or not a string.
func (s *State) AttrString(key string) string {
	v, _ := s.Attr(key).(string)
	return v
}

// Store provides access to entity state snapshots.
type Store interface {
	// Get returns ErrStateNotFound if the entity has no snapshot.
	Get(ctx context.Context, entityID string) (*State, error)

	// ListDomain returns snapshots whose entity_id is in domain, sorted by entity_id.
	ListDomain(ctx context.Context, domain string) ([]State, error)

	// Upsert stores a snapshot, replacing any previous one.
	Upsert(ctx context.Context, s *State) error

	// Delete removes a snapshot. Missing snapshots are not an error.
	Delete(ctx context.Context, entityID string) error
}

// Decode parses a published snapshot payload for entityID. The entity_id
// field of the payload, if present, must agree with entityID.
func Decode(entityID string, payload []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", entityID, err)
	}
	if s.EntityID != "" && s.EntityID != entityID {
		return nil, fmt.Errorf("state payload for %s names entity %s", entityID, s.EntityID)
	}
	s.EntityID = entityID
	return &s, nil
}
