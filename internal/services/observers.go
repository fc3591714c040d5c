package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/entity-manager/internal/infrastructure/influxdb"
	"github.com/nerrad567/entity-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/entity-manager/internal/manager"
)

// mqttEventName is the event topic segment for entity updates.
const mqttEventName = "entity_updated"

// Event is the message published for a mutation.
type Event struct {
	EventType string           `json:"event_type"`
	Data      manager.Mutation `json:"data"`
	TimeFired time.Time        `json:"time_fired"`
}

// EventPublisher publishes every applied mutation on
// entitymanager/event/entity_updated. Failed mutations changed nothing
// and are not published.
type EventPublisher struct {
	bus    Bus
	topics mqtt.Topics
	logger Logger
}

// NewEventPublisher creates an EventPublisher on bus.
func NewEventPublisher(bus Bus) *EventPublisher {
	return &EventPublisher{bus: bus, logger: noopLogger{}}
}

// SetLogger sets the logger for the publisher.
func (p *EventPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// MutationApplied implements manager.Observer.
func (p *EventPublisher) MutationApplied(_ context.Context, m manager.Mutation) {
	if m.Outcome == manager.OutcomeFailure {
		return
	}

	payload, err := json.Marshal(Event{
		EventType: manager.EventEntityUpdated,
		Data:      m,
		TimeFired: m.Time,
	})
	if err != nil {
		p.logger.Error("encoding mutation event", "operation", m.Operation, "error", err)
		return
	}

	// paho queues the publish; the error only reports a closed or
	// disconnected client.
	if err := p.bus.Publish(p.topics.Event(mqttEventName), payload, p.bus.QoS(), false); err != nil {
		p.logger.Warn("publishing mutation event failed", "operation", m.Operation, "error", err)
	}
}

// MutationWriter records mutation telemetry.
// *influxdb.Client satisfies it.
type MutationWriter interface {
	WriteMutation(p influxdb.MutationPoint)
}

// TelemetryWriter writes one telemetry point per mutation, failures
// included.
type TelemetryWriter struct {
	writer MutationWriter
}

// NewTelemetryWriter creates a TelemetryWriter.
func NewTelemetryWriter(w MutationWriter) *TelemetryWriter {
	return &TelemetryWriter{writer: w}
}

// MutationApplied implements manager.Observer.
func (t *TelemetryWriter) MutationApplied(_ context.Context, m manager.Mutation) {
	source := m.Actor.Source
	if source == "" {
		source = manager.SourceSystem
	}
	t.writer.WriteMutation(influxdb.MutationPoint{
		Operation: m.Operation,
		Outcome:   m.Outcome,
		Source:    source,
		Count:     m.Count,
		Time:      m.Time,
	})
}

var (
	_ manager.Observer = (*EventPublisher)(nil)
	_ manager.Observer = (*TelemetryWriter)(nil)
)
