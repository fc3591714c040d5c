package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// ackTimeout bounds every wait for a broker acknowledgement
	// (publish, subscribe, unsubscribe).
	ackTimeout = 5 * time.Second

	disconnectQuiesceMillis = 1000
	keepAlive               = 60 * time.Second
	maxQoS                  = 2
)

// Option customises a Client before it connects.
type Option func(*Client)

// WithInstance tags status messages with the ID of the managed instance,
// so several entity managers can share one broker.
func WithInstance(id string) Option {
	return func(c *Client) {
		c.instanceID = id
	}
}

// WithLogger sets the logger for reconnects and handler failures.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// clientOptions translates the mqtt config section into paho options and
// hooks the connection lifecycle back into c. The will marks this service
// offline on the status topic if the session ends without Close.
func (c *Client) clientOptions() *pahomqtt.ClientOptions {
	cfg := c.cfg
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetBinaryWill(Topics{}.SystemStatus(), c.status(StatusOffline, reasonConnectionLost), c.QoS(), true)

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
	})
	return opts
}
