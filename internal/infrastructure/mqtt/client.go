package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
)

// Client is the entity manager's connection to the MQTT bus. It carries
// mutation events out, service calls and state snapshots in, and keeps a
// retained online/offline status for the instance it serves.
//
// Methods are safe for concurrent use. Subscriptions survive reconnects.
type Client struct {
	paho       pahomqtt.Client
	cfg        config.MQTTConfig
	instanceID string

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	logger Logger
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one message. topic has wildcards expanded.
// A returned error is logged; the message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and waits for the first session. The online
// status is published from the session handler once paho reports it.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.paho = pahomqtt.NewClient(c.clientOptions())
	if err := await(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The paho connect handler runs asynchronously; callers may publish
	// as soon as Connect returns.
	c.connected.Store(true)
	return c, nil
}

// await waits for a broker acknowledgement and wraps any failure in kind.
func await(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	restored := c.resubscribe()
	c.paho.Publish(Topics{}.SystemStatus(), c.QoS(), true, c.status(StatusOnline, ""))
	c.log().Info("MQTT session established", "subscriptions", restored)
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	c.log().Warn("MQTT connection lost", "error", err)
}

// resubscribe replays tracked subscriptions on a fresh session.
func (c *Client) resubscribe() int {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		c.paho.Subscribe(sub.topic, sub.qos, c.dispatch(sub.handler))
	}
	return len(subs)
}

// Close publishes the shutdown status and disconnects. Calling it on a
// client that never connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), c.QoS(), true, c.status(StatusOffline, reasonShutdown))
		token.WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

func (c *Client) log() Logger {
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// dispatch adapts a MessageHandler to paho, logging errors and
// recovering panics so one bad message cannot stop delivery.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
