package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the entity manager uses.
const TopicPrefix = "entitymanager"

// Topic categories below TopicPrefix.
const (
	categoryEvent   = "event"
	categoryService = "service"
	categoryState   = "state"
	categorySystem  = "system"
)

// Topics provides builders for entity manager MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Event("entity_updated")   // entitymanager/event/entity_updated
//	topics.Service("disable_entity") // entitymanager/service/disable_entity
//	topics.State("sensor.kitchen")   // entitymanager/state/sensor.kitchen
type Topics struct{}

// Event returns the topic a mutation event of the given type is published on.
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, categoryEvent, eventType)
}

// Service returns the topic carrying calls to the named service.
func (Topics) Service(name string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, categoryService, name)
}

// State returns the topic carrying state snapshots for one entity.
func (Topics) State(entityID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, categoryState, entityID)
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, categorySystem)
}

// AllEvents returns a wildcard matching every event topic.
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, categoryEvent)
}

// AllServices returns a wildcard matching every service call topic.
func (Topics) AllServices() string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, categoryService)
}

// AllStates returns a wildcard matching every state topic.
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, categoryState)
}

// ServiceName extracts the service name from a service call topic.
// It returns false if the topic is not a service topic.
func (Topics) ServiceName(topic string) (string, bool) {
	return lastSegment(topic, categoryService)
}

// StateEntityID extracts the entity ID from a state topic.
// It returns false if the topic is not a state topic.
func (Topics) StateEntityID(topic string) (string, bool) {
	return lastSegment(topic, categoryState)
}

// lastSegment returns X for topics of the form entitymanager/<category>/X.
func lastSegment(topic, category string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/"+category+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
