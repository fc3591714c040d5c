// Package services connects the entity manager to the MQTT bus.
//
// Handler subscribes to entitymanager/service/<name> for fire-and-forget
// enable/disable calls and to entitymanager/state/<entity_id> for the
// platform's state snapshots. EventPublisher and TelemetryWriter observe
// manager mutations and forward them to MQTT and InfluxDB.
package services
