package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single message at 1MB, the common broker default.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to acknowledge
// it. Only the status topic is retained; events and service calls are not.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ackTimeout, ErrPublishFailed)
}

// PublishJSON marshals v and publishes it, unretained, at the configured QoS.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, c.QoS(), false)
}

// QoS returns the configured default QoS, falling back to 1 when the
// configured value is out of range.
func (c *Client) QoS() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return 1
	}
	return byte(c.cfg.QoS) //nolint:gosec // G115: range checked above
}
