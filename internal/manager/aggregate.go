package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/entity-manager/internal/registry"
)

// FilterMode selects which entities appear in the grouped view.
type FilterMode string

// Filter modes.
const (
	FilterDisabled FilterMode = "disabled"
	FilterEnabled  FilterMode = "enabled"
	FilterAll      FilterMode = "all"
)

// Bucket keys for entities without a platform or device.
const (
	unknownPlatform = "unknown"
	noDevice        = "no_device"
)

// ParseFilterMode validates s. An empty string selects FilterDisabled.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(s) {
	case "":
		return FilterDisabled, nil
	case FilterDisabled, FilterEnabled, FilterAll:
		return FilterMode(s), nil
	}
	return "", validationf("Invalid state filter: %s. Must be one of disabled, enabled, all.", s)
}

func (f FilterMode) includes(disabled bool) bool {
	switch f {
	case FilterAll:
		return true
	case FilterDisabled:
		return disabled
	case FilterEnabled:
		return !disabled
	}
	return false
}

// EntitySummary is the short form of an entity used in grouped views and exports.
type EntitySummary struct {
	EntityID       string                  `json:"entity_id"`
	Platform       string                  `json:"platform"`
	DeviceID       *string                 `json:"device_id"`
	DisabledBy     registry.DisabledBy     `json:"disabled_by"`
	IsDisabled     bool                    `json:"is_disabled"`
	OriginalName   *string                 `json:"original_name"`
	EntityCategory registry.EntityCategory `json:"entity_category"`
}

// Summarize builds the summary of e. A missing platform reads "unknown".
func Summarize(e *registry.Entity) EntitySummary {
	platform := e.Platform
	if platform == "" {
		platform = unknownPlatform
	}
	return EntitySummary{
		EntityID:       e.EntityID,
		Platform:       platform,
		DeviceID:       e.DeviceID,
		DisabledBy:     e.DisabledBy,
		IsDisabled:     e.IsDisabled(),
		OriginalName:   e.OriginalName,
		EntityCategory: e.EntityCategory,
	}
}

// DeviceGroup is one device bucket inside an IntegrationGroup.
type DeviceGroup struct {
	DeviceID         *string         `json:"device_id"`
	Name             *string         `json:"name"`
	Entities         []EntitySummary `json:"entities"`
	TotalEntities    int             `json:"total_entities"`
	DisabledEntities int             `json:"disabled_entities"`
}

// IntegrationGroup is one integration bucket of the grouped view.
//
// Devices is keyed by device id, or "no_device" for entities without one.
// DeviceOrder lists the keys in the order their first entity was seen.
type IntegrationGroup struct {
	Integration      string                  `json:"integration"`
	Devices          map[string]*DeviceGroup `json:"devices"`
	DeviceOrder      []string                `json:"-"`
	TotalEntities    int                     `json:"total_entities"`
	DisabledEntities int                     `json:"disabled_entities"`
}

// DeviceNamer returns the display name of a device, or nil if it cannot
// be resolved.
type DeviceNamer func(deviceID string) *string

// GroupByIntegrationAndDevice buckets entities by platform and device.
//
// Counters accumulate over every entity; only entities matching mode are
// listed. Device buckets with no listed entities are pruned, then
// integrations left with no devices. Integrations keep encounter order
// and entity lists keep the order of entities.
func GroupByIntegrationAndDevice(entities []registry.Entity, mode FilterMode, deviceName DeviceNamer) []IntegrationGroup {
	groups := make(map[string]*IntegrationGroup)
	var order []string

	for i := range entities {
		e := &entities[i]
		summary := Summarize(e)

		ig, ok := groups[summary.Platform]
		if !ok {
			ig = &IntegrationGroup{
				Integration: summary.Platform,
				Devices:     make(map[string]*DeviceGroup),
			}
			groups[summary.Platform] = ig
			order = append(order, summary.Platform)
		}
		ig.TotalEntities++
		if summary.IsDisabled {
			ig.DisabledEntities++
		}

		key := noDevice
		if e.DeviceID != nil && *e.DeviceID != "" {
			key = *e.DeviceID
		}
		dg, ok := ig.Devices[key]
		if !ok {
			dg = &DeviceGroup{Entities: []EntitySummary{}}
			if key != noDevice {
				id := key
				dg.DeviceID = &id
				if deviceName != nil {
					dg.Name = deviceName(key)
				}
			}
			ig.Devices[key] = dg
			ig.DeviceOrder = append(ig.DeviceOrder, key)
		}
		dg.TotalEntities++
		if summary.IsDisabled {
			dg.DisabledEntities++
		}

		if mode.includes(summary.IsDisabled) {
			dg.Entities = append(dg.Entities, summary)
		}
	}

	result := make([]IntegrationGroup, 0, len(order))
	for _, platform := range order {
		ig := groups[platform]
		kept := ig.DeviceOrder[:0]
		for _, key := range ig.DeviceOrder {
			if len(ig.Devices[key].Entities) == 0 {
				delete(ig.Devices, key)
				continue
			}
			kept = append(kept, key)
		}
		ig.DeviceOrder = kept
		if len(kept) == 0 {
			continue
		}
		result = append(result, *ig)
	}
	return result
}

// GroupedEntities returns the grouped view of the whole entity registry.
//
// Parameters:
//   - mode: "disabled" (default when empty), "enabled" or "all"
func (m *Manager) GroupedEntities(ctx context.Context, mode string) ([]IntegrationGroup, error) {
	filter, err := ParseFilterMode(mode)
	if err != nil {
		return nil, err
	}

	entities, err := m.registry.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	var lookupErr error
	names := make(map[string]*string)
	namer := func(deviceID string) *string {
		if name, ok := names[deviceID]; ok {
			return name
		}
		var name *string
		d, err := m.registry.GetDevice(ctx, deviceID)
		switch {
		case err == nil:
			n := d.DisplayName()
			name = &n
		case errors.Is(err, registry.ErrDeviceNotFound):
		default:
			if lookupErr == nil {
				lookupErr = fmt.Errorf("looking up device %s: %w", deviceID, err)
			}
		}
		names[deviceID] = name
		return name
	}

	groups := GroupByIntegrationAndDevice(entities, filter, namer)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return groups, nil
}
