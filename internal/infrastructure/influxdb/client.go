package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// Client writes mutation telemetry to one InfluxDB bucket. Writes are
// batched and non-blocking; failures surface through the logger.
type Client struct {
	influx     influxdb2.Client
	writeAPI   api.WriteAPI
	instanceID string
	logger     Logger

	connected atomic.Bool
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Option customises a Client before it connects.
type Option func(*Client)

// WithInstance adds an instance tag to every point.
func WithInstance(id string) Option {
	return func(c *Client) {
		c.instanceID = id
	}
}

// WithLogger sets the logger that receives asynchronous write failures.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// writeOptions applies batching defaults for unset or invalid values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}
	// #nosec G115 -- both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000) // milliseconds
}

// Connect pings the server and opens the write API. It returns
// ErrDisabled without dialling when the section is disabled.
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{logger: noopLogger{}}
	for _, opt := range opts {
		opt(c)
	}

	c.influx = influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		c.influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.writeAPI = c.influx.WriteAPI(cfg.Org, cfg.Bucket)
	go c.logWriteErrors(c.writeAPI.Errors())

	c.connected.Store(true)
	return c, nil
}

func (c *Client) ping(ctx context.Context) error {
	healthy, err := c.influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not ready")
	}
	return nil
}

// logWriteErrors drains the write API's error channel until Close.
func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.Error("influxdb write failed", "error", err)
	}
}

// Close flushes buffered points and releases the client. Safe on a zero
// Client and on repeated calls.
func (c *Client) Close() error {
	if c.influx == nil || !c.connected.Swap(false) {
		return nil
	}
	c.writeAPI.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.ping(checkCtx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close has not run.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}
