package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/entity-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/entity-manager/internal/manager"
	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/state"
)

// Service names accepted on entitymanager/service/<name>.
const (
	ServiceEnableEntity  = "enable_entity"
	ServiceDisableEntity = "disable_entity"
)

// sourceMQTT is the actor source recorded for bus-originated mutations.
const sourceMQTT = "mqtt"

var (
	// ErrUnknownService is returned for a service name with no handler.
	ErrUnknownService = errors.New("services: unknown service")

	// ErrInvalidCall is returned for a malformed service call payload.
	ErrInvalidCall = errors.New("services: invalid service call")
)

// Bus is the subset of the MQTT client the services use.
// *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// EntityService performs the mutations exposed as services.
// *manager.Manager satisfies it.
type EntityService interface {
	EnableEntity(ctx context.Context, entityID string) error
	DisableEntity(ctx context.Context, entityID string) error
}

// Logger defines the logging interface used by this package.
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

// serviceCall is the payload of a service call message.
type serviceCall struct {
	EntityID string `json:"entity_id"`
}

// Handler dispatches service calls and ingests state snapshots.
type Handler struct {
	bus      Bus
	entities EntityService
	states   state.Store
	topics   mqtt.Topics

	// ctx bounds the work done by message handlers; set by Start.
	ctx context.Context
	mu  sync.RWMutex

	logger Logger
}

// NewHandler creates a Handler. states may be nil to skip state ingest.
func NewHandler(bus Bus, entities EntityService, states state.Store) *Handler {
	return &Handler{
		bus:      bus,
		entities: entities,
		states:   states,
		ctx:      context.Background(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	h.logger = logger
}

// Start subscribes to the service and state topics. Handlers run with
// ctx until it is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	serviceTopic := h.topics.AllServices()
	if err := h.bus.Subscribe(serviceTopic, h.bus.QoS(), h.HandleServiceMessage); err != nil {
		return fmt.Errorf("subscribe to services: %w", err)
	}
	h.logger.Info("subscribed to service calls", "topic", serviceTopic)

	if h.states != nil {
		stateTopic := h.topics.AllStates()
		if err := h.bus.Subscribe(stateTopic, h.bus.QoS(), h.HandleStateMessage); err != nil {
			return fmt.Errorf("subscribe to states: %w", err)
		}
		h.logger.Info("subscribed to state snapshots", "topic", stateTopic)
	}
	return nil
}

func (h *Handler) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// HandleServiceMessage runs one service call. Calls are fire-and-forget:
// failures are logged and returned to the MQTT client for its own log,
// never answered on the bus.
func (h *Handler) HandleServiceMessage(topic string, payload []byte) error {
	name, ok := h.topics.ServiceName(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownService, topic)
	}

	var call serviceCall
	if err := json.Unmarshal(payload, &call); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCall, err)
	}
	if !registry.ValidEntityID(call.EntityID) {
		return fmt.Errorf("%w: entity_id %q", ErrInvalidCall, call.EntityID)
	}

	ctx := manager.WithActor(h.context(), manager.Actor{Source: sourceMQTT})

	var err error
	switch name {
	case ServiceEnableEntity:
		err = h.entities.EnableEntity(ctx, call.EntityID)
	case ServiceDisableEntity:
		err = h.entities.DisableEntity(ctx, call.EntityID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	if err != nil {
		h.logger.Error("service call failed", "service", name, "entity_id", call.EntityID, "error", err)
		return err
	}
	h.logger.Info("service call handled", "service", name, "entity_id", call.EntityID)
	return nil
}

// HandleStateMessage stores a published state snapshot. An empty payload
// means the entity's state was removed.
func (h *Handler) HandleStateMessage(topic string, payload []byte) error {
	entityID, ok := h.topics.StateEntityID(topic)
	if !ok || !registry.ValidEntityID(entityID) {
		return fmt.Errorf("state topic %s does not name an entity", topic)
	}

	ctx := h.context()
	if len(payload) == 0 {
		if err := h.states.Delete(ctx, entityID); err != nil {
			return fmt.Errorf("deleting state of %s: %w", entityID, err)
		}
		h.logger.Debug("state removed", "entity_id", entityID)
		return nil
	}

	st, err := state.Decode(entityID, payload)
	if err != nil {
		return err
	}
	if err := h.states.Upsert(ctx, st); err != nil {
		return fmt.Errorf("storing state of %s: %w", entityID, err)
	}
	h.logger.Debug("state stored", "entity_id", entityID, "state", st.State)
	return nil
}
