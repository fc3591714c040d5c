package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the access facade over all registries. Entities are served
// from an in-memory cache that preserves registry insertion order; the
// other registries are read through to the catalog repository.
//
// The cache is populated by RefreshCache and kept in sync by the mutating
// methods. All public methods are thread-safe.
type Registry struct {
	entities EntityRepository
	catalog  CatalogRepository
	logger   Logger

	cacheMu sync.RWMutex
	byID    map[string]*Entity // keyed by entity_id
	order   []string           // entity_ids in registry order
	loaded  bool
}

// New creates a registry facade over the given repositories.
func New(entities EntityRepository, catalog CatalogRepository) *Registry {
	return &Registry{
		entities: entities,
		catalog:  catalog,
		logger:   noopLogger{},
		byID:     make(map[string]*Entity),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entities from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entities, err := r.entities.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	byID := make(map[string]*Entity, len(entities))
	order := make([]string, 0, len(entities))
	for i := range entities {
		e := entities[i].DeepCopy()
		byID[e.EntityID] = e
		order = append(order, e.EntityID)
	}

	r.cacheMu.Lock()
	r.byID = byID
	r.order = order
	r.loaded = true
	r.cacheMu.Unlock()

	r.logger.Info("entity cache refreshed", "count", len(entities))
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.cacheMu.RLock()
	loaded := r.loaded
	r.cacheMu.RUnlock()
	if loaded {
		return nil
	}
	return r.RefreshCache(ctx)
}

// ListEntities returns deep copies of all entities in registry order.
func (r *Registry) ListEntities(ctx context.Context) ([]Entity, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := make([]Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id].DeepCopy())
	}
	return out, nil
}

// GetEntity returns a deep copy of the entity, or ErrEntityNotFound.
func (r *Registry) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	e, ok := r.byID[entityID]
	r.cacheMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return e.DeepCopy(), nil
}

// EntityCount returns the number of cached entities.
func (r *Registry) EntityCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.order)
}

// SaveEntity inserts or replaces an entity. New entities go to the end
// of the registry order.
func (r *Registry) SaveEntity(ctx context.Context, entity *Entity) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := r.entities.Save(ctx, entity); err != nil {
		return err
	}

	stored, err := r.entities.GetByEntityID(ctx, entity.EntityID)
	if err != nil {
		return err
	}

	r.cacheMu.Lock()
	// An upsert may have renamed an existing record.
	if idx := r.indexByRegistryID(stored.ID); idx >= 0 {
		old := r.order[idx]
		delete(r.byID, old)
		r.order[idx] = stored.EntityID
	} else {
		r.order = append(r.order, stored.EntityID)
	}
	r.byID[stored.EntityID] = stored
	r.cacheMu.Unlock()

	r.logger.Debug("entity saved", "entity_id", stored.EntityID)
	return nil
}

// indexByRegistryID must be called with cacheMu held.
func (r *Registry) indexByRegistryID(id string) int {
	return slices.IndexFunc(r.order, func(entityID string) bool {
		return r.byID[entityID].ID == id
	})
}

// UpdateEntity applies a partial change. A rename keeps the entity in
// its original position.
func (r *Registry) UpdateEntity(ctx context.Context, entityID string, upd EntityUpdate) (*Entity, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	updated, err := r.entities.Update(ctx, entityID, upd)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if idx := slices.Index(r.order, entityID); idx >= 0 {
		r.order[idx] = updated.EntityID
	} else {
		r.order = append(r.order, updated.EntityID)
	}
	if updated.EntityID != entityID {
		delete(r.byID, entityID)
	}
	r.byID[updated.EntityID] = updated.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("entity updated", "entity_id", entityID, "new_entity_id", updated.EntityID)
	return updated, nil
}

// RemoveEntity deletes an entity record.
func (r *Registry) RemoveEntity(ctx context.Context, entityID string) error {
	if err := r.entities.Delete(ctx, entityID); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.evict(func(e *Entity) bool { return e.EntityID == entityID })
	r.cacheMu.Unlock()

	r.logger.Debug("entity removed", "entity_id", entityID)
	return nil
}

// evict drops cached entities matching fn. Must be called with cacheMu held.
func (r *Registry) evict(fn func(*Entity) bool) int {
	removed := 0
	r.order = slices.DeleteFunc(r.order, func(id string) bool {
		if fn(r.byID[id]) {
			delete(r.byID, id)
			removed++
			return true
		}
		return false
	})
	return removed
}

// GetDevice returns the device, or ErrDeviceNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	return r.catalog.GetDevice(ctx, id)
}

// ListDevices returns every device.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.catalog.ListDevices(ctx)
}

// SaveDevice inserts or replaces a device.
func (r *Registry) SaveDevice(ctx context.Context, d *Device) error {
	return r.catalog.SaveDevice(ctx, d)
}

// GetArea returns the area, or ErrAreaNotFound.
func (r *Registry) GetArea(ctx context.Context, id string) (*Area, error) {
	return r.catalog.GetArea(ctx, id)
}

// SaveArea inserts or replaces an area.
func (r *Registry) SaveArea(ctx context.Context, a *Area) error {
	return r.catalog.SaveArea(ctx, a)
}

// GetLabel returns the label, or ErrLabelNotFound.
func (r *Registry) GetLabel(ctx context.Context, id string) (*Label, error) {
	return r.catalog.GetLabel(ctx, id)
}

// SaveLabel inserts or replaces a label.
func (r *Registry) SaveLabel(ctx context.Context, l *Label) error {
	return r.catalog.SaveLabel(ctx, l)
}

// GetConfigEntry returns the config entry, or ErrConfigEntryNotFound.
func (r *Registry) GetConfigEntry(ctx context.Context, id string) (*ConfigEntry, error) {
	return r.catalog.GetConfigEntry(ctx, id)
}

// SaveConfigEntry inserts or updates a config entry.
func (r *Registry) SaveConfigEntry(ctx context.Context, c *ConfigEntry) error {
	return r.catalog.SaveConfigEntry(ctx, c)
}

// RemoveConfigEntry deletes a config entry together with every entity it owns.
func (r *Registry) RemoveConfigEntry(ctx context.Context, id string) error {
	if err := r.catalog.DeleteConfigEntry(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	removed := r.evict(func(e *Entity) bool {
		return e.ConfigEntryID != nil && *e.ConfigEntryID == id
	})
	r.cacheMu.Unlock()

	r.logger.Info("config entry removed", "entry_id", id, "entities_removed", removed)
	return nil
}

// IsNotFound reports whether err is any of the registry's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrAreaNotFound) ||
		errors.Is(err, ErrLabelNotFound) ||
		errors.Is(err, ErrConfigEntryNotFound)
}
