package manager

import (
	"context"
	"time"
)

// Mutation operations, named after the commands that trigger them.
const (
	OpEnableEntity     = "enable_entity"
	OpDisableEntity    = "disable_entity"
	OpBulkEnable       = "bulk_enable"
	OpBulkDisable      = "bulk_disable"
	OpRenameEntity     = "rename_entity"
	OpRemoveEntity     = "remove_entity"
	OpSetDisplayName   = "update_entity_display_name"
	OpUpdateReferences = "update_yaml_references"
)

// EventEntityUpdated is the event type under which mutations are
// broadcast to subscribers.
const EventEntityUpdated = "entity_manager.entity_updated"

// Mutation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// Actor identifies who requested a mutation.
type Actor struct {
	UserID string `json:"user_id,omitempty"`

	// Source is the channel the request arrived on: "websocket", "api",
	// "mqtt" or "cli".
	Source string `json:"source"`
}

// SourceSystem is the source of mutations with no actor attached.
const SourceSystem = "system"

type actorKey struct{}

// WithActor attaches the requesting actor to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor attached to ctx. Source defaults to
// SourceSystem.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	if a.Source == "" {
		a.Source = SourceSystem
	}
	return a
}

// Mutation describes one completed (or failed) mutation.
type Mutation struct {
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`

	// EntityID is the affected entity; for bulk operations it is empty
	// and EntityIDs lists the entities that changed.
	EntityID  string   `json:"entity_id,omitempty"`
	EntityIDs []string `json:"entity_ids,omitempty"`

	// Count is the number of entities actually changed.
	Count int `json:"count"`

	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Actor   Actor          `json:"actor"`
	Time    time.Time      `json:"time"`
}

// Observer is notified after every mutation. Implementations must not
// block; slow work belongs on a queue.
type Observer interface {
	MutationApplied(ctx context.Context, m Mutation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, m Mutation)

// MutationApplied calls f.
func (f ObserverFunc) MutationApplied(ctx context.Context, m Mutation) { f(ctx, m) }

// notify stamps m and hands it to every observer.
func (m *Manager) notify(ctx context.Context, mut Mutation) {
	mut.Actor = ActorFrom(ctx)
	mut.Time = time.Now().UTC()
	for _, o := range m.observers {
		o.MutationApplied(ctx, mut)
	}
}

// record builds and sends the Mutation for a single-entity operation.
func (m *Manager) record(ctx context.Context, op, entityID string, err error, details map[string]any) {
	mut := Mutation{
		Operation: op,
		EntityID:  entityID,
		Outcome:   OutcomeSuccess,
		Count:     1,
		Details:   details,
	}
	if err != nil {
		mut.Outcome = OutcomeFailure
		mut.Count = 0
		mut.Error = err.Error()
	}
	m.notify(ctx, mut)
}
