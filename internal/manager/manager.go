package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/state"
)

// Registry is the subset of the registry facade the manager consumes.
// *registry.Registry satisfies it.
type Registry interface {
	ListEntities(ctx context.Context) ([]registry.Entity, error)
	GetEntity(ctx context.Context, entityID string) (*registry.Entity, error)
	UpdateEntity(ctx context.Context, entityID string, upd registry.EntityUpdate) (*registry.Entity, error)
	RemoveEntity(ctx context.Context, entityID string) error

	GetDevice(ctx context.Context, id string) (*registry.Device, error)
	GetArea(ctx context.Context, id string) (*registry.Area, error)
	GetLabel(ctx context.Context, id string) (*registry.Label, error)
	GetConfigEntry(ctx context.Context, id string) (*registry.ConfigEntry, error)
	RemoveConfigEntry(ctx context.Context, id string) error
}

// UserDirectory resolves user IDs to display names.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Logger defines the logging interface used by the Manager.
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

// Manager aggregates registry data and orchestrates entity mutations.
type Manager struct {
	registry  Registry
	states    state.Store
	users     UserDirectory
	refs      ReferenceRewriter
	observers []Observer
	logger    Logger
}

// New creates a Manager.
//
// Parameters:
//   - reg: Registry facade
//   - states: State snapshot store (nil disables automation/template listings)
//   - users: User directory for trigger context (nil resolves no names)
func New(reg Registry, states state.Store, users UserDirectory) *Manager {
	return &Manager{
		registry: reg,
		states:   states,
		users:    users,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// AddObserver registers an observer notified after every mutation.
// Call before the manager is used concurrently.
func (m *Manager) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// lookupEntity returns the entity or a not-found Error naming entityID.
func (m *Manager) lookupEntity(ctx context.Context, entityID string) (*registry.Entity, error) {
	e, err := m.registry.GetEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, registry.ErrEntityNotFound) {
			return nil, entityNotFound(entityID)
		}
		return nil, fmt.Errorf("looking up %s: %w", entityID, err)
	}
	return e, nil
}
