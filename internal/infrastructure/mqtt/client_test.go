package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
)

// These tests need no broker. Broker round trips live in integration_test.go.

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event", topics.Event("entity_updated"), "entitymanager/event/entity_updated"},
		{"service", topics.Service("disable_entity"), "entitymanager/service/disable_entity"},
		{"state", topics.State("sensor.kitchen"), "entitymanager/state/sensor.kitchen"},
		{"status", topics.SystemStatus(), "entitymanager/system/status"},
		{"all events", topics.AllEvents(), "entitymanager/event/+"},
		{"all services", topics.AllServices(), "entitymanager/service/+"},
		{"all states", topics.AllStates(), "entitymanager/state/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicParsers(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		topic     string
		wantState string
		stateOK   bool
		wantSvc   string
		svcOK     bool
	}{
		{"entitymanager/state/light.porch", "light.porch", true, "", false},
		{"entitymanager/service/enable_entity", "", false, "enable_entity", true},
		{"entitymanager/state/", "", false, "", false},
		{"entitymanager/state/a/b", "", false, "", false},
		{"other/state/light.porch", "", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := topics.StateEntityID(tt.topic)
			if id != tt.wantState || ok != tt.stateOK {
				t.Errorf("StateEntityID() = %q, %v; want %q, %v", id, ok, tt.wantState, tt.stateOK)
			}
			svc, ok := topics.ServiceName(tt.topic)
			if svc != tt.wantSvc || ok != tt.svcOK {
				t.Errorf("ServiceName() = %q, %v; want %q, %v", svc, ok, tt.wantSvc, tt.svcOK)
			}
		})
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	client := &Client{}
	err := client.PublishJSON("a/b", make(chan int))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := client.Subscribe("a/b", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := client.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := client.Subscribe("a/b", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if client.SubscriptionCount() != 0 || client.HasSubscription("a/b") {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
}

func TestQoS(t *testing.T) {
	tests := []struct {
		configured int
		want       byte
	}{
		{0, 0},
		{2, 2},
		{-1, 1},
		{7, 1},
	}
	for _, tt := range tests {
		c := &Client{cfg: config.MQTTConfig{QoS: tt.configured}}
		if got := c.QoS(); got != tt.want {
			t.Errorf("QoS() with %d = %d, want %d", tt.configured, got, tt.want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	c := &Client{
		cfg: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "em-test"},
			Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
			QoS:    2,
		},
		instanceID: "inst-7",
	}
	opts := c.clientOptions()

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "em-test" || opts.Username != "u" || opts.Password != "p" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig should be set when TLS is enabled")
	}

	if !opts.WillEnabled || opts.WillTopic != "entitymanager/system/status" || !opts.WillRetained || opts.WillQos != 2 {
		t.Errorf("will = %q retained=%v qos=%d", opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
	var will Status
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != reasonConnectionLost || will.InstanceID != "inst-7" || will.ClientID != "em-test" {
		t.Errorf("will = %+v", will)
	}
}

func TestBrokerURL_Plain(t *testing.T) {
	got := brokerURL(config.MQTTBrokerConfig{Host: "localhost", Port: 1883})
	if got != "tcp://localhost:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
}

func TestStatusPayload(t *testing.T) {
	c := &Client{cfg: config.MQTTConfig{Broker: config.MQTTBrokerConfig{ClientID: "em"}}}

	var st Status
	if err := json.Unmarshal(c.status(StatusOnline, ""), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Status != StatusOnline || st.ClientID != "em" || st.Reason != "" || st.Timestamp.IsZero() {
		t.Errorf("status = %+v", st)
	}

	raw := string(c.status(StatusOffline, reasonShutdown))
	if strings.Contains(raw, "instance_id") {
		t.Errorf("instance_id should be omitted when unset: %s", raw)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := (&Client{}).HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// fakeMessage satisfies pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestDispatch(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{logger: logger}

	var got string
	wrapped := client.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	wrapped(nil, fakeMessage{topic: "t/1", payload: []byte("on")})
	if got != "t/1=on" {
		t.Errorf("handler saw %q", got)
	}

	client.dispatch(func(string, []byte) error {
		return errors.New("boom")
	})(nil, fakeMessage{topic: "t/2"})

	client.dispatch(func(string, []byte) error {
		panic("handler panic")
	})(nil, fakeMessage{topic: "t/3"})

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}

var _ pahomqtt.Message = fakeMessage{}
