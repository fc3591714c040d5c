package registry

import (
	"regexp"
	"strings"
	"time"
)

// entityIDPattern is the entity_id grammar: "<domain>.<object_id>".
var entityIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z0-9_]+$`)

// ValidEntityID reports whether id matches the entity_id grammar.
func ValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// SplitEntityID returns the domain and object_id of an entity_id.
// If id has no dot, domain is empty and objectID is id.
func SplitEntityID(id string) (domain, objectID string) {
	domain, objectID, found := strings.Cut(id, ".")
	if !found {
		return "", id
	}
	return domain, objectID
}

// Entity is one record of the entity registry.
type Entity struct {
	// Identity
	ID       string `json:"id"` // stable registry id, unchanged by renames
	EntityID string `json:"entity_id"`
	UniqueID string `json:"unique_id"`
	Platform string `json:"platform"`

	// Relations
	ConfigEntryID *string `json:"config_entry_id"`
	DeviceID      *string `json:"device_id"`
	AreaID        *string `json:"area_id"`

	// Naming
	Name         *string  `json:"name"`
	OriginalName *string  `json:"original_name"`
	Aliases      []string `json:"aliases"`

	DisabledBy     DisabledBy     `json:"disabled_by"`
	HiddenBy       HiddenBy       `json:"hidden_by"`
	EntityCategory EntityCategory `json:"entity_category"`

	// Presentation
	DeviceClass         *string `json:"device_class"`
	OriginalDeviceClass *string `json:"original_device_class"`
	Icon                *string `json:"icon"`
	OriginalIcon        *string `json:"original_icon"`
	UnitOfMeasurement   *string `json:"unit_of_measurement"`

	SupportedFeatures int            `json:"supported_features"`
	Capabilities      map[string]any `json:"capabilities"`

	// Labels holds label IDs in assignment order.
	Labels []string `json:"labels"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Domain returns the domain segment of the entity_id.
func (e *Entity) Domain() string {
	domain, _ := SplitEntityID(e.EntityID)
	return domain
}

// IsDisabled reports whether anything has disabled the entity.
func (e *Entity) IsDisabled() bool {
	return e.DisabledBy != DisabledByNone
}

// DeepCopy returns an independent copy of the entity.
func (e *Entity) DeepCopy() *Entity {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.ConfigEntryID = copyString(e.ConfigEntryID)
	cpy.DeviceID = copyString(e.DeviceID)
	cpy.AreaID = copyString(e.AreaID)
	cpy.Name = copyString(e.Name)
	cpy.OriginalName = copyString(e.OriginalName)
	cpy.DeviceClass = copyString(e.DeviceClass)
	cpy.OriginalDeviceClass = copyString(e.OriginalDeviceClass)
	cpy.Icon = copyString(e.Icon)
	cpy.OriginalIcon = copyString(e.OriginalIcon)
	cpy.UnitOfMeasurement = copyString(e.UnitOfMeasurement)
	cpy.Aliases = copySlice(e.Aliases)
	cpy.Labels = copySlice(e.Labels)
	cpy.Capabilities = deepCopyMap(e.Capabilities)
	return &cpy
}

// EntityUpdate describes a partial change to an entity.
// Nil fields are left untouched.
type EntityUpdate struct {
	// DisabledBy replaces disabled_by. Point at DisabledByNone to enable.
	DisabledBy *DisabledBy

	// SetName applies Name as the user-facing name override. A nil Name
	// clears the override.
	SetName bool
	Name    *string

	// NewEntityID renames the entity when non-empty.
	NewEntityID string
}

// Device is one record of the device registry.
type Device struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	NameByUser       *string     `json:"name_by_user"`
	Manufacturer     *string     `json:"manufacturer"`
	Model            *string     `json:"model"`
	ModelID          *string     `json:"model_id"`
	SWVersion        *string     `json:"sw_version"`
	HWVersion        *string     `json:"hw_version"`
	SerialNumber     *string     `json:"serial_number"`
	ConfigurationURL *string     `json:"configuration_url"`
	AreaID           *string     `json:"area_id"`
	Labels           []string    `json:"labels"`
	Connections      [][2]string `json:"connections"`
	Identifiers      [][2]string `json:"identifiers"`
}

// DisplayName returns the user-assigned name, falling back to the
// integration-provided name.
func (d *Device) DisplayName() string {
	if d.NameByUser != nil && *d.NameByUser != "" {
		return *d.NameByUser
	}
	return d.Name
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.NameByUser = copyString(d.NameByUser)
	cpy.Manufacturer = copyString(d.Manufacturer)
	cpy.Model = copyString(d.Model)
	cpy.ModelID = copyString(d.ModelID)
	cpy.SWVersion = copyString(d.SWVersion)
	cpy.HWVersion = copyString(d.HWVersion)
	cpy.SerialNumber = copyString(d.SerialNumber)
	cpy.ConfigurationURL = copyString(d.ConfigurationURL)
	cpy.AreaID = copyString(d.AreaID)
	cpy.Labels = copySlice(d.Labels)
	cpy.Connections = copySlice(d.Connections)
	cpy.Identifiers = copySlice(d.Identifiers)
	return &cpy
}

// Area is one record of the area registry.
type Area struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Label is one record of the label registry.
type Label struct {
	LabelID string  `json:"label_id"`
	Name    string  `json:"name"`
	Color   *string `json:"color"`
}

// ConfigEntry is one configured integration instance.
type ConfigEntry struct {
	EntryID    string              `json:"entry_id"`
	Domain     string              `json:"domain"`
	Title      string              `json:"title"`
	Source     string              `json:"source"`
	Version    int                 `json:"version"`
	State      ConfigEntryState    `json:"state"`
	DisabledBy ConfigEntryDisabler `json:"disabled_by"`
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copySlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	cpy := make([]T, len(s))
	copy(cpy, s)
	return cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
