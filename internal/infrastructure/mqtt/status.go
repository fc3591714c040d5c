package mqtt

import (
	"encoding/json"
	"time"
)

// Values of Status.Status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	reasonShutdown       = "shutdown"
	reasonConnectionLost = "connection_lost"
)

// Status is the retained payload on entitymanager/system/status.
//
// The broker publishes the offline variant with reason "connection_lost"
// as the client's will; Close publishes it with reason "shutdown".
type Status struct {
	Status     string    `json:"status"`
	ClientID   string    `json:"client_id"`
	InstanceID string    `json:"instance_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (c *Client) status(state, reason string) []byte {
	payload, _ := json.Marshal(Status{ //nolint:errchkjson // Plain struct, cannot fail
		Status:     state,
		ClientID:   c.cfg.Broker.ClientID,
		InstanceID: c.instanceID,
		Reason:     reason,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	})
	return payload
}
