// Entity Manager - registry maintenance service for a home-automation platform.
//
// This is the main entry point. The binary is a cobra command tree:
//
//	entitymanager serve                  run the HTTP/WebSocket API
//	entitymanager migrate up|down|status manage the database schema
//	entitymanager rewrite-refs OLD NEW   rewrite YAML references offline
//	entitymanager user add|list          create or list login accounts
//	entitymanager user deactivate NAME   block a login (and activate)
//	entitymanager import FILE            load a registry snapshot
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/entity-manager/migrations"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
	"github.com/nerrad567/entity-manager/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides the default configuration path.
const configEnvVar = "ENTITYMANAGER_CONFIG"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by subcommands.
type app struct {
	configPath string
}

// rootCommand builds the command tree.
func rootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "entitymanager",
		Short:         "Entity registry maintenance service",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"configuration file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		a.serveCommand(),
		a.migrateCommand(),
		a.rewriteRefsCommand(),
		a.userCommand(),
		a.importCommand(),
	)
	return root
}

// getConfigPath returns the configuration file path: the --config flag,
// then ENTITYMANAGER_CONFIG, then the default.
func (a *app) getConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the configuration and builds the logger from it.
func (a *app) loadConfig() (*config.Config, *logging.Logger, error) {
	path := a.getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openDatabase opens the configured database and applies pending
// migrations. The caller closes it.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := openRaw(ctx, cfg)
	if err != nil {
		return nil, err
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)
	return db, nil
}
