package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, registry.ErrEntityNotFound) {
//	    // handle not found case
//	}
var (
	// ErrEntityNotFound is returned when an entity_id does not exist.
	ErrEntityNotFound = errors.New("registry: entity not found")

	// ErrEntityExists is returned when an entity_id is already registered.
	ErrEntityExists = errors.New("registry: entity already exists")

	// ErrInvalidEntityID is returned when an entity_id does not match the grammar.
	ErrInvalidEntityID = errors.New("registry: invalid entity id")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrAreaNotFound is returned when an area ID does not exist.
	ErrAreaNotFound = errors.New("registry: area not found")

	// ErrLabelNotFound is returned when a label ID does not exist.
	ErrLabelNotFound = errors.New("registry: label not found")

	// ErrConfigEntryNotFound is returned when a config entry ID does not exist.
	ErrConfigEntryNotFound = errors.New("registry: config entry not found")

	// ErrInvalidValue is returned when an enumerated field holds an unknown value.
	ErrInvalidValue = errors.New("registry: invalid value")
)
