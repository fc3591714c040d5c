package api

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/entity-manager/internal/manager"
)

// Metrics holds the Prometheus collectors of the API server.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	mutationsTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a dedicated registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entitymanager",
				Name:      "commands_total",
				Help:      "Total number of commands handled, by command and result code",
			},
			[]string{"command", "code"}, // code: success or a failure code
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "entitymanager",
				Name:      "command_duration_seconds",
				Help:      "Time taken to run a command",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"command"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entitymanager",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests, by method, route pattern and status",
			},
			[]string{"method", "route", "status_code"},
		),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "entitymanager",
			Name:      "websocket_connections",
			Help:      "Number of connected WebSocket clients",
		}),
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entitymanager",
				Name:      "mutations_total",
				Help:      "Total number of registry mutations, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.httpRequests,
		m.wsConnections,
		m.mutationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// The observe methods are no-ops on a nil *Metrics.

func (m *Metrics) observeCommand(command, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, code).Inc()
	if elapsed > 0 {
		m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}

// MutationApplied implements manager.Observer.
func (m *Metrics) MutationApplied(_ context.Context, mut manager.Mutation) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(mut.Operation, mut.Outcome).Inc()
}

// SystemStatus is the response of GET /api/v1/system.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          *MQTTMetrics    `json:"mqtt,omitempty"`
	Entities      EntityMetrics   `json:"entities"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// EntityMetrics contains entity registry statistics.
type EntityMetrics struct {
	Total int `json:"total"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// ConnectionChecker reports whether a bus connection is up.
// *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// EntityCounter reports the number of registered entities.
// *registry.Registry satisfies it.
type EntityCounter interface {
	EntityCount() int
}

// DBStatser exposes connection pool statistics.
// *database.DB satisfies it.
type DBStatser interface {
	Stats() sql.DBStats
}

// handleSystem returns runtime, connection and registry statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		status.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.entities != nil {
		status.Entities.Total = s.entities.EntityCount()
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		status.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
