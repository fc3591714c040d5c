// Package api provides the HTTP REST API and WebSocket server for the
// entity manager.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/entity-manager/internal/audit"
	"github.com/nerrad567/entity-manager/internal/auth"
	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
	"github.com/nerrad567/entity-manager/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Commands *CommandTable
	Auth     *auth.Service

	// Optional. A nil interface disables the feature that uses it.
	AuditRepo audit.Repository
	Metrics   *Metrics
	MQTT      ConnectionChecker
	Entities  EntityCounter
	DB        DBStatser

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	commands  *CommandTable
	auth      *auth.Service
	auditRepo audit.Repository
	metrics   *Metrics
	mqtt      ConnectionChecker
	entities  EntityCounter
	db        DBStatser
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The hub is created here so it can be registered as a mutation observer
// before the server starts. The server is not started until Start() is
// called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, command table, auth)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command table is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		commands:  deps.Commands,
		auth:      deps.Auth,
		auditRepo: deps.AuditRepo,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		entities:  deps.Entities,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.metrics = s.metrics
	return s, nil
}

// Hub returns the WebSocket hub. Register it with the manager to push
// entity update events to subscribers.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, sets up the router, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and ticket cleanup goroutines
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
