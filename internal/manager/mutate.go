package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/entity-manager/internal/registry"
)

// MaxBulkEntities is the largest id list a bulk operation accepts.
const MaxBulkEntities = 500

// templateDomain marks entities created by the template integration.
const templateDomain = "template"

// YAMLEntityWarning is returned when removing an entity that is defined
// in YAML configuration.
const YAMLEntityWarning = "This entity is defined in YAML and will return after the next HA restart."

// BulkResult reports a bulk operation item by item. Every input id
// appears exactly once across Success and Failed.
type BulkResult struct {
	Success []string      `json:"success"`
	Failed  []BulkFailure `json:"failed"`
}

// BulkFailure is one failed item of a bulk operation.
type BulkFailure struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// RenameResult is returned by RenameEntity.
type RenameResult struct {
	Success     bool   `json:"success"`
	OldEntityID string `json:"old_entity_id"`
	NewEntityID string `json:"new_entity_id"`
}

// RemoveResult is returned by RemoveEntity.
type RemoveResult struct {
	Success            bool    `json:"success"`
	RemovedConfigEntry bool    `json:"removed_config_entry"`
	Warning            *string `json:"warning"`
}

// EnableEntity clears disabled_by on an entity. Enabling an enabled
// entity succeeds without change.
func (m *Manager) EnableEntity(ctx context.Context, entityID string) error {
	err := m.setDisabled(ctx, entityID, registry.DisabledByNone)
	m.record(ctx, OpEnableEntity, entityID, err, nil)
	if err != nil {
		return err
	}
	m.logger.Info("entity enabled", "entity_id", entityID)
	return nil
}

// DisableEntity sets disabled_by to "user". Disabling a disabled entity
// succeeds and records the user as the disabler.
func (m *Manager) DisableEntity(ctx context.Context, entityID string) error {
	err := m.setDisabled(ctx, entityID, registry.DisabledByUser)
	m.record(ctx, OpDisableEntity, entityID, err, nil)
	if err != nil {
		return err
	}
	m.logger.Info("entity disabled", "entity_id", entityID)
	return nil
}

func (m *Manager) setDisabled(ctx context.Context, entityID string, by registry.DisabledBy) error {
	if _, err := m.lookupEntity(ctx, entityID); err != nil {
		return err
	}
	if _, err := m.registry.UpdateEntity(ctx, entityID, registry.EntityUpdate{DisabledBy: &by}); err != nil {
		if errors.Is(err, registry.ErrEntityNotFound) {
			return entityNotFound(entityID)
		}
		return fmt.Errorf("updating %s: %w", entityID, err)
	}
	return nil
}

// BulkEnable enables each entity in order, collecting per-item failures.
func (m *Manager) BulkEnable(ctx context.Context, entityIDs []string) (*BulkResult, error) {
	return m.bulk(ctx, OpBulkEnable, entityIDs, registry.DisabledByNone)
}

// BulkDisable disables each entity in order, collecting per-item failures.
func (m *Manager) BulkDisable(ctx context.Context, entityIDs []string) (*BulkResult, error) {
	return m.bulk(ctx, OpBulkDisable, entityIDs, registry.DisabledByUser)
}

// ValidateBulkSize checks that n is within 1..MaxBulkEntities.
func ValidateBulkSize(n int) error {
	if n < 1 || n > MaxBulkEntities {
		return validationf("entity_ids must contain between 1 and %d entities, got %d", MaxBulkEntities, n)
	}
	return nil
}

func (m *Manager) bulk(ctx context.Context, op string, entityIDs []string, by registry.DisabledBy) (*BulkResult, error) {
	if err := ValidateBulkSize(len(entityIDs)); err != nil {
		return nil, err
	}

	result := &BulkResult{
		Success: make([]string, 0, len(entityIDs)),
		Failed:  []BulkFailure{},
	}
	for _, id := range entityIDs {
		if err := m.setDisabled(ctx, id, by); err != nil {
			m.logger.Error("bulk item failed", "operation", op, "entity_id", id, "error", err)
			result.Failed = append(result.Failed, BulkFailure{EntityID: id, Error: err.Error()})
			continue
		}
		result.Success = append(result.Success, id)
	}

	outcome := OutcomeSuccess
	switch {
	case len(result.Success) == 0:
		outcome = OutcomeFailure
	case len(result.Failed) > 0:
		outcome = OutcomePartial
	}
	m.notify(ctx, Mutation{
		Operation: op,
		Outcome:   outcome,
		EntityIDs: result.Success,
		Count:     len(result.Success),
		Details:   map[string]any{"failed": len(result.Failed)},
	})

	m.logger.Info("bulk operation complete",
		"operation", op,
		"succeeded", len(result.Success),
		"failed", len(result.Failed),
	)
	return result, nil
}

// RenameEntity changes an entity's id within its domain.
//
// Checks run in this order and the first failure is returned:
//  1. newID matches the entity id grammar
//  2. oldID exists
//  3. oldID and newID share a domain
//  4. newID is not already registered
func (m *Manager) RenameEntity(ctx context.Context, oldID, newID string) (*RenameResult, error) {
	err := m.rename(ctx, oldID, newID)
	m.record(ctx, OpRenameEntity, oldID, err, map[string]any{"new_entity_id": newID})
	if err != nil {
		m.logger.Error("rename failed", "old_entity_id", oldID, "new_entity_id", newID, "error", err)
		return nil, err
	}

	m.logger.Info("entity renamed", "old_entity_id", oldID, "new_entity_id", newID)
	return &RenameResult{Success: true, OldEntityID: oldID, NewEntityID: newID}, nil
}

func (m *Manager) rename(ctx context.Context, oldID, newID string) error {
	if !registry.ValidEntityID(newID) {
		return validationf("Invalid entity ID format: %s. Must be lowercase with format 'domain.object_id' using only a-z, 0-9, and underscores.", newID)
	}

	if _, err := m.lookupEntity(ctx, oldID); err != nil {
		return err
	}

	oldDomain, _ := registry.SplitEntityID(oldID)
	newDomain, _ := registry.SplitEntityID(newID)
	if oldDomain != newDomain {
		return validationf("Domain mismatch: cannot change domain from '%s' to '%s'", oldDomain, newDomain)
	}

	if _, err := m.registry.GetEntity(ctx, newID); err == nil {
		return validationf("Entity %s already exists", newID)
	} else if !errors.Is(err, registry.ErrEntityNotFound) {
		return fmt.Errorf("looking up %s: %w", newID, err)
	}

	_, err := m.registry.UpdateEntity(ctx, oldID, registry.EntityUpdate{NewEntityID: newID})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrEntityExists):
		return validationf("Entity %s already exists", newID)
	case errors.Is(err, registry.ErrEntityNotFound):
		return entityNotFound(oldID)
	default:
		return fmt.Errorf("renaming %s: %w", oldID, err)
	}
}

// RemoveEntity deletes an entity from the registry.
//
// An entity owned by a template config entry is removed by deleting the
// whole config entry. A template entity with no config entry comes from
// YAML and will reappear on restart; the result carries a warning.
func (m *Manager) RemoveEntity(ctx context.Context, entityID string) (*RemoveResult, error) {
	res, err := m.remove(ctx, entityID)
	var details map[string]any
	if res != nil {
		details = map[string]any{"removed_config_entry": res.RemovedConfigEntry}
	}
	m.record(ctx, OpRemoveEntity, entityID, err, details)
	if err != nil {
		return nil, err
	}
	m.logger.Info("entity removed", "entity_id", entityID, "removed_config_entry", res.RemovedConfigEntry)
	return res, nil
}

func (m *Manager) remove(ctx context.Context, entityID string) (*RemoveResult, error) {
	e, err := m.lookupEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if e.ConfigEntryID != nil {
		ce, err := m.registry.GetConfigEntry(ctx, *e.ConfigEntryID)
		switch {
		case err == nil && ce.Domain == templateDomain:
			if err := m.registry.RemoveConfigEntry(ctx, ce.EntryID); err != nil {
				return nil, fmt.Errorf("removing config entry %s: %w", ce.EntryID, err)
			}
			return &RemoveResult{Success: true, RemovedConfigEntry: true}, nil
		case err != nil && !errors.Is(err, registry.ErrConfigEntryNotFound):
			return nil, fmt.Errorf("looking up config entry %s: %w", *e.ConfigEntryID, err)
		}
	}

	if err := m.registry.RemoveEntity(ctx, entityID); err != nil {
		if errors.Is(err, registry.ErrEntityNotFound) {
			return nil, entityNotFound(entityID)
		}
		return nil, fmt.Errorf("removing %s: %w", entityID, err)
	}

	res := &RemoveResult{Success: true}
	if e.ConfigEntryID == nil && e.Platform == templateDomain {
		warning := YAMLEntityWarning
		res.Warning = &warning
	}
	return res, nil
}

// SetDisplayName sets the user-facing name override. A nil, empty or
// blank name clears the override; anything else is stored as given.
func (m *Manager) SetDisplayName(ctx context.Context, entityID string, name *string) error {
	err := m.setDisplayName(ctx, entityID, name)
	var details map[string]any
	if name != nil {
		details = map[string]any{"name": *name}
	}
	m.record(ctx, OpSetDisplayName, entityID, err, details)
	if err != nil {
		return err
	}
	m.logger.Info("entity display name updated", "entity_id", entityID)
	return nil
}

func (m *Manager) setDisplayName(ctx context.Context, entityID string, name *string) error {
	if _, err := m.lookupEntity(ctx, entityID); err != nil {
		return err
	}

	if name != nil && strings.TrimSpace(*name) == "" {
		name = nil
	}
	_, err := m.registry.UpdateEntity(ctx, entityID, registry.EntityUpdate{SetName: true, Name: name})
	if err != nil {
		if errors.Is(err, registry.ErrEntityNotFound) {
			return entityNotFound(entityID)
		}
		return fmt.Errorf("updating %s: %w", entityID, err)
	}
	return nil
}
