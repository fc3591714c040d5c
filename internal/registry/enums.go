package registry

import (
	"encoding/json"
	"fmt"
)

// DisabledBy records who disabled an entity. The zero value means enabled.
type DisabledBy string

// DisabledBy values.
const (
	DisabledByNone        DisabledBy = ""
	DisabledByUser        DisabledBy = "user"
	DisabledByIntegration DisabledBy = "integration"
	DisabledByConfigEntry DisabledBy = "config_entry"
	DisabledByDevice      DisabledBy = "device"
	DisabledByHass        DisabledBy = "hass"
)

// Valid reports whether d is a known DisabledBy value.
func (d DisabledBy) Valid() bool {
	switch d {
	case DisabledByNone, DisabledByUser, DisabledByIntegration,
		DisabledByConfigEntry, DisabledByDevice, DisabledByHass:
		return true
	}
	return false
}

// MarshalJSON encodes DisabledByNone as null.
func (d DisabledBy) MarshalJSON() ([]byte, error) { return marshalNullable(string(d)) }

// UnmarshalJSON accepts null or a known value.
func (d *DisabledBy) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, (*string)(d), func(s string) bool { return DisabledBy(s).Valid() })
}

// HiddenBy records who hid an entity. The zero value means visible.
type HiddenBy string

// HiddenBy values.
const (
	HiddenByNone        HiddenBy = ""
	HiddenByUser        HiddenBy = "user"
	HiddenByIntegration HiddenBy = "integration"
)

// Valid reports whether h is a known HiddenBy value.
func (h HiddenBy) Valid() bool {
	return h == HiddenByNone || h == HiddenByUser || h == HiddenByIntegration
}

// MarshalJSON encodes HiddenByNone as null.
func (h HiddenBy) MarshalJSON() ([]byte, error) { return marshalNullable(string(h)) }

// UnmarshalJSON accepts null or a known value.
func (h *HiddenBy) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, (*string)(h), func(s string) bool { return HiddenBy(s).Valid() })
}

// EntityCategory classifies non-primary entities.
type EntityCategory string

// EntityCategory values.
const (
	EntityCategoryNone       EntityCategory = ""
	EntityCategoryConfig     EntityCategory = "config"
	EntityCategoryDiagnostic EntityCategory = "diagnostic"
)

// Valid reports whether c is a known EntityCategory value.
func (c EntityCategory) Valid() bool {
	return c == EntityCategoryNone || c == EntityCategoryConfig || c == EntityCategoryDiagnostic
}

// MarshalJSON encodes EntityCategoryNone as null.
func (c EntityCategory) MarshalJSON() ([]byte, error) { return marshalNullable(string(c)) }

// UnmarshalJSON accepts null or a known value.
func (c *EntityCategory) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, (*string)(c), func(s string) bool { return EntityCategory(s).Valid() })
}

// ConfigEntryDisabler records who disabled a config entry.
type ConfigEntryDisabler string

// ConfigEntryDisabler values.
const (
	ConfigEntryDisablerNone ConfigEntryDisabler = ""
	ConfigEntryDisablerUser ConfigEntryDisabler = "user"
)

// Valid reports whether c is a known ConfigEntryDisabler value.
func (c ConfigEntryDisabler) Valid() bool {
	return c == ConfigEntryDisablerNone || c == ConfigEntryDisablerUser
}

// MarshalJSON encodes ConfigEntryDisablerNone as null.
func (c ConfigEntryDisabler) MarshalJSON() ([]byte, error) { return marshalNullable(string(c)) }

// UnmarshalJSON accepts null or a known value.
func (c *ConfigEntryDisabler) UnmarshalJSON(data []byte) error {
	return unmarshalNullable(data, (*string)(c), func(s string) bool { return ConfigEntryDisabler(s).Valid() })
}

// ConfigEntryState is the lifecycle state of a config entry.
type ConfigEntryState string

// ConfigEntryState values.
const (
	ConfigEntryLoaded          ConfigEntryState = "loaded"
	ConfigEntrySetupError      ConfigEntryState = "setup_error"
	ConfigEntryMigrationError  ConfigEntryState = "migration_error"
	ConfigEntrySetupRetry      ConfigEntryState = "setup_retry"
	ConfigEntryNotLoaded       ConfigEntryState = "not_loaded"
	ConfigEntryFailedUnload    ConfigEntryState = "failed_unload"
	ConfigEntrySetupInProgress ConfigEntryState = "setup_in_progress"
)

// Valid reports whether s is a known ConfigEntryState.
func (s ConfigEntryState) Valid() bool {
	switch s {
	case ConfigEntryLoaded, ConfigEntrySetupError, ConfigEntryMigrationError,
		ConfigEntrySetupRetry, ConfigEntryNotLoaded, ConfigEntryFailedUnload,
		ConfigEntrySetupInProgress:
		return true
	}
	return false
}

func marshalNullable(s string) ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

func unmarshalNullable(data []byte, dst *string, valid func(string) bool) error {
	if string(data) == "null" {
		*dst = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !valid(s) {
		return fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	*dst = s
	return nil
}
