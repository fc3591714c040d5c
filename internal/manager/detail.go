package manager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/entity-manager/internal/registry"
)

// EntityDetail is the cross-registry record for one entity.
type EntityDetail struct {
	Entity       EntityInfo       `json:"entity"`
	Device       *DeviceInfo      `json:"device"`
	Area         *AreaInfo        `json:"area"`
	ConfigEntry  *ConfigEntryInfo `json:"config_entry"`
	Labels       []LabelInfo      `json:"labels"`
	DeviceLabels []LabelInfo      `json:"device_labels"`
}

// EntityInfo holds every entity registry field.
type EntityInfo struct {
	EntityID            string                  `json:"entity_id"`
	UniqueID            string                  `json:"unique_id"`
	OriginalName        *string                 `json:"original_name"`
	Name                *string                 `json:"name"`
	Aliases             []string                `json:"aliases"`
	Platform            string                  `json:"platform"`
	Domain              string                  `json:"domain"`
	ConfigEntryID       *string                 `json:"config_entry_id"`
	DeviceID            *string                 `json:"device_id"`
	AreaID              *string                 `json:"area_id"`
	EntityCategory      registry.EntityCategory `json:"entity_category"`
	DeviceClass         *string                 `json:"device_class"`
	OriginalDeviceClass *string                 `json:"original_device_class"`
	Icon                *string                 `json:"icon"`
	OriginalIcon        *string                 `json:"original_icon"`
	DisabledBy          registry.DisabledBy     `json:"disabled_by"`
	HiddenBy            registry.HiddenBy       `json:"hidden_by"`
	UnitOfMeasurement   *string                 `json:"unit_of_measurement"`
	SupportedFeatures   int                     `json:"supported_features"`
	Capabilities        map[string]string       `json:"capabilities"`
}

// DeviceInfo is the device section of an EntityDetail.
type DeviceInfo struct {
	Name             string      `json:"name"`
	NameByUser       *string     `json:"name_by_user"`
	Manufacturer     *string     `json:"manufacturer"`
	Model            *string     `json:"model"`
	ModelID          *string     `json:"model_id"`
	SWVersion        *string     `json:"sw_version"`
	HWVersion        *string     `json:"hw_version"`
	SerialNumber     *string     `json:"serial_number"`
	ConfigurationURL *string     `json:"configuration_url"`
	Connections      [][2]string `json:"connections"`
	Identifiers      [][2]string `json:"identifiers"`
	AreaID           *string     `json:"area_id"`
}

// AreaInfo is the area section of an EntityDetail.
type AreaInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// ConfigEntryInfo is the config entry section of an EntityDetail.
type ConfigEntryInfo struct {
	Domain     string                       `json:"domain"`
	Title      string                       `json:"title"`
	Source     string                       `json:"source"`
	Version    int                          `json:"version"`
	State      registry.ConfigEntryState    `json:"state"`
	DisabledBy registry.ConfigEntryDisabler `json:"disabled_by"`
}

// LabelInfo is a resolved label reference.
type LabelInfo struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

// EntityDetail assembles the detail record for entityID.
//
// Only a missing entity fails the call. Device, area, config entry and
// label references that do not resolve are left out of the record.
func (m *Manager) EntityDetail(ctx context.Context, entityID string) (*EntityDetail, error) {
	e, err := m.lookupEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	detail := &EntityDetail{
		Entity:       entityInfo(e),
		Labels:       m.resolveLabels(ctx, e.Labels),
		DeviceLabels: []LabelInfo{},
	}

	var dev *registry.Device
	if e.DeviceID != nil {
		dev = resolve(ctx, m, "device", *e.DeviceID, m.registry.GetDevice)
		if dev != nil {
			detail.Device = deviceInfo(dev)
			detail.DeviceLabels = m.resolveLabels(ctx, dev.Labels)
		}
	}

	areaID := e.AreaID
	if areaID == nil && dev != nil {
		areaID = dev.AreaID
	}
	if areaID != nil {
		if a := resolve(ctx, m, "area", *areaID, m.registry.GetArea); a != nil {
			detail.Area = &AreaInfo{ID: a.ID, Name: a.Name, Aliases: nonNilStrings(a.Aliases)}
		}
	}

	if e.ConfigEntryID != nil {
		if ce := resolve(ctx, m, "config_entry", *e.ConfigEntryID, m.registry.GetConfigEntry); ce != nil {
			detail.ConfigEntry = &ConfigEntryInfo{
				Domain:     ce.Domain,
				Title:      ce.Title,
				Source:     ce.Source,
				Version:    ce.Version,
				State:      ce.State,
				DisabledBy: ce.DisabledBy,
			}
		}
	}

	return detail, nil
}

// resolve looks up id with get, returning nil if that fails. Failures
// other than not-found are logged.
func resolve[T any](ctx context.Context, m *Manager, kind, id string, get func(context.Context, string) (*T, error)) *T {
	v, err := get(ctx, id)
	if err != nil {
		if !registry.IsNotFound(err) {
			m.logger.Warn("detail lookup failed", "kind", kind, "id", id, "error", err)
		}
		return nil
	}
	return v
}

func (m *Manager) resolveLabels(ctx context.Context, ids []string) []LabelInfo {
	out := make([]LabelInfo, 0, len(ids))
	for _, id := range ids {
		l := resolve(ctx, m, "label", id, m.registry.GetLabel)
		if l == nil {
			continue
		}
		out = append(out, LabelInfo{ID: l.LabelID, Name: l.Name, Color: l.Color})
	}
	return out
}

func entityInfo(e *registry.Entity) EntityInfo {
	caps := make(map[string]string, len(e.Capabilities))
	for k, v := range e.Capabilities {
		caps[k] = stringify(v)
	}
	return EntityInfo{
		EntityID:            e.EntityID,
		UniqueID:            e.UniqueID,
		OriginalName:        e.OriginalName,
		Name:                e.Name,
		Aliases:             nonNilStrings(e.Aliases),
		Platform:            e.Platform,
		Domain:              e.Domain(),
		ConfigEntryID:       e.ConfigEntryID,
		DeviceID:            e.DeviceID,
		AreaID:              e.AreaID,
		EntityCategory:      e.EntityCategory,
		DeviceClass:         e.DeviceClass,
		OriginalDeviceClass: e.OriginalDeviceClass,
		Icon:                e.Icon,
		OriginalIcon:        e.OriginalIcon,
		DisabledBy:          e.DisabledBy,
		HiddenBy:            e.HiddenBy,
		UnitOfMeasurement:   e.UnitOfMeasurement,
		SupportedFeatures:   e.SupportedFeatures,
		Capabilities:        caps,
	}
}

func deviceInfo(d *registry.Device) *DeviceInfo {
	pairs := func(p [][2]string) [][2]string {
		if p == nil {
			return [][2]string{}
		}
		return p
	}
	return &DeviceInfo{
		Name:             d.Name,
		NameByUser:       d.NameByUser,
		Manufacturer:     d.Manufacturer,
		Model:            d.Model,
		ModelID:          d.ModelID,
		SWVersion:        d.SWVersion,
		HWVersion:        d.HWVersion,
		SerialNumber:     d.SerialNumber,
		ConfigurationURL: d.ConfigurationURL,
		Connections:      pairs(d.Connections),
		Identifiers:      pairs(d.Identifiers),
		AreaID:           d.AreaID,
	}
}

// stringify renders a capability value. Strings pass through; anything
// else is JSON encoded.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
