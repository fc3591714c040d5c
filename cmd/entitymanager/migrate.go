package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
)

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withRawDatabase(cmd.Context(), func(db *database.DB) error {
					n, err := db.Migrate(cmd.Context())
					if err != nil {
						return fmt.Errorf("running migrations: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withRawDatabase(cmd.Context(), func(db *database.DB) error {
					m, err := db.MigrateDown(cmd.Context())
					if errors.Is(err, database.ErrNoMigrationsApplied) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("rolling back: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s %s\n", m.Version, m.Name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withRawDatabase(cmd.Context(), func(db *database.DB) error {
					statuses, err := db.Status(cmd.Context())
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
					for _, s := range statuses {
						status := "pending"
						if s.Applied {
							status = "applied " + s.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%s\t%s\t%s\n", s.Version, s.Name, status)
					}
					return w.Flush()
				})
			},
		},
	)
	return cmd
}

// withRawDatabase opens the configured database without migrating it.
func (a *app) withRawDatabase(ctx context.Context, fn func(db *database.DB) error) error {
	cfg, _, err := a.loadConfig()
	if err != nil {
		return err
	}
	db, err := openRaw(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exit
	return fn(db)
}

func openRaw(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
