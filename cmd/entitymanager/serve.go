package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/entity-manager/internal/api"
	"github.com/nerrad567/entity-manager/internal/audit"
	"github.com/nerrad567/entity-manager/internal/auth"
	"github.com/nerrad567/entity-manager/internal/hacs"
	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
	"github.com/nerrad567/entity-manager/internal/infrastructure/influxdb"
	"github.com/nerrad567/entity-manager/internal/infrastructure/logging"
	"github.com/nerrad567/entity-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/entity-manager/internal/manager"
	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/services"
	"github.com/nerrad567/entity-manager/internal/state"
	"github.com/nerrad567/entity-manager/internal/yamlref"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs the service until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func (a *app) serve(ctx context.Context) error {
	cfg, log, err := a.loadConfig()
	if err != nil {
		return err
	}
	log.Info("starting entity manager",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config_dir", cfg.Instance.ConfigDir,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	// Registry facade and collaborators
	reg := registry.New(registry.NewSQLiteEntityRepository(db.DB), registry.NewSQLiteCatalogRepository(db.DB))
	reg.SetLogger(log.Component("registry"))
	if refreshErr := reg.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "entities", reg.EntityCount())

	states := state.NewSQLiteStore(db.DB)
	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, log); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	rewriter := yamlref.New(cfg.Instance.ConfigDir)
	rewriter.SetLogger(log.Component("yamlref"))

	mgr := manager.New(reg, states, manager.NewCachedUserDirectory(auth.NewDirectory(users), 0))
	mgr.SetLogger(log.Component("manager"))
	mgr.SetReferenceRewriter(rewriter)

	// Audit trail, written off the request path
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, 0)
	recorder.SetLogger(log.Component("audit"))
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go recorder.Run(auditCtx)
	defer func() {
		stopAudit()
		<-recorder.Done()
	}()
	mgr.AddObserver(recorder)

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(ctx, cfg, mgr, states, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB,
			influxdb.WithInstance(cfg.Instance.ID),
			influxdb.WithLogger(log.Component("influxdb")),
		)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mgr.AddObserver(services.NewTelemetryWriter(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command table and API server
	scanner := hacs.NewScanner(cfg.Instance.ConfigDir)
	scanner.SetLogger(log.Component("hacs"))

	apiLog := log.Component("api")
	commands, err := api.NewCommandTable(mgr, scanner, apiLog)
	if err != nil {
		return fmt.Errorf("building command table: %w", err)
	}
	metrics, err := api.NewMetrics()
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	commands.SetMetrics(metrics)

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    apiLog,
		Commands:  commands,
		Auth:      auth.NewService(users, cfg.Security.JWT.Secret, time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute),
		AuditRepo: auditRepo,
		Metrics:   metrics,
		Entities:  reg,
		DB:        db,
		Version:   version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	mgr.AddObserver(server.Hub())
	mgr.AddObserver(metrics)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred Close() calls run in reverse order: API, InfluxDB, MQTT,
	// audit drain, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startMQTT connects to the broker, publishes mutation events and starts
// the service-call and state-ingest handler.
func startMQTT(ctx context.Context, cfg *config.Config, mgr *manager.Manager, states state.Store, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithInstance(cfg.Instance.ID),
		mqtt.WithLogger(log.Component("mqtt")),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	publisher := services.NewEventPublisher(client)
	publisher.SetLogger(log.Component("events"))
	mgr.AddObserver(publisher)

	handler := services.NewHandler(client, mgr, states)
	handler.SetLogger(log.Component("services"))
	if err := handler.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("starting service handler: %w", err)
	}
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
