package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementMutations is the measurement every entity mutation is recorded in.
const MeasurementMutations = "entity_mutations"

// MutationPoint is one row of MeasurementMutations. Bulk operations
// produce a single point whose Count is the number of entities changed.
type MutationPoint struct {
	Operation string
	Outcome   string

	// Source is the channel the mutation arrived on (websocket, api, mqtt,
	// cli or system).
	Source string

	Count int
	Time  time.Time
}

func (p MutationPoint) tags(instanceID string) map[string]string {
	tags := map[string]string{
		"operation": p.Operation,
		"outcome":   p.Outcome,
	}
	if p.Source != "" {
		tags["source"] = p.Source
	}
	if instanceID != "" {
		tags["instance"] = instanceID
	}
	return tags
}

// WriteMutation queues p for the next batch. It is dropped when the
// client is closed.
//
//	client.WriteMutation(influxdb.MutationPoint{
//	    Operation: "bulk_disable", Outcome: "partial", Source: "api", Count: 12,
//	})
func (c *Client) WriteMutation(p MutationPoint) {
	if !c.IsConnected() {
		return
	}
	at := p.Time
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementMutations,
		p.tags(c.instanceID),
		map[string]any{"count": p.Count},
		at,
	))
}
