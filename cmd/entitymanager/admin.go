package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/entity-manager/internal/auth"
	"github.com/nerrad567/entity-manager/internal/registry"
	"github.com/nerrad567/entity-manager/internal/yamlref"
)

// passwordEnvVar supplies the password for "user add" without putting
// it on the command line.
const passwordEnvVar = "ENTITYMANAGER_USER_PASSWORD"

// rewriteRefsCommand runs the reference rewriter against the configured
// config directory. The platform should be stopped first.
func (a *app) rewriteRefsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite-refs OLD_ENTITY_ID NEW_ENTITY_ID",
		Short: "Rewrite entity id references in the YAML configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.loadConfig()
			if err != nil {
				return err
			}

			rw := yamlref.New(cfg.Instance.ConfigDir)
			rw.SetLogger(log)
			result, err := rw.Rewrite(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("rewriting references: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("writing result: %w", err)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d file(s) could not be rewritten", len(result.Errors))
			}
			return nil
		},
	}
}

func (a *app) userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	var (
		displayName string
		role        string
		password    string
	)
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create a login account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnvVar)
			}
			if password == "" {
				return errors.New("a password is required (--password or $" + passwordEnvVar + ")")
			}
			if !auth.IsValidRole(auth.Role(role)) {
				return fmt.Errorf("unknown role %q", role)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			if displayName == "" {
				displayName = args[0]
			}
			user := &auth.User{
				Username:     args[0],
				DisplayName:  displayName,
				PasswordHash: hash,
				Role:         auth.Role(role),
				IsActive:     true,
			}
			return a.withUsers(cmd, func(users auth.UserRepository) error {
				if err := users.Create(cmd.Context(), user); err != nil {
					return fmt.Errorf("creating user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&displayName, "display-name", "", "name shown in trigger context (default USERNAME)")
	add.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "role: admin or user")
	add.Flags().StringVar(&password, "password", "", "password (default $"+passwordEnvVar+")")

	list := &cobra.Command{
		Use:   "list",
		Short: "List login accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withUsers(cmd, func(users auth.UserRepository) error {
				all, err := users.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tUSERNAME\tDISPLAY NAME\tROLE\tACTIVE")
				for _, u := range all {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.DisplayName, u.Role, u.IsActive)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(add, list, setActiveCommand(a, "activate", true), setActiveCommand(a, "deactivate", false))
	return cmd
}

// setActiveCommand builds "user activate" and "user deactivate".
func setActiveCommand(a *app, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " USERNAME",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a login account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(users auth.UserRepository) error {
				if err := users.SetActive(cmd.Context(), args[0], active); err != nil {
					return fmt.Errorf("%s %s: %w", verb, args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd user %s\n", verb, args[0])
				return nil
			})
		},
	}
}

// withUsers opens the migrated database for the duration of fn.
func (a *app) withUsers(cmd *cobra.Command, fn func(auth.UserRepository) error) error {
	cfg, log, err := a.loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exit
	return fn(auth.NewUserRepository(db.DB))
}

// importCommand loads a registry snapshot (YAML or JSON) into the
// database.
func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a registry snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := registry.LoadSnapshot(args[0])
			if err != nil {
				return err
			}

			cfg, log, err := a.loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // CLI exit

			reg := registry.New(registry.NewSQLiteEntityRepository(db.DB), registry.NewSQLiteCatalogRepository(db.DB))
			reg.SetLogger(log)
			if err := reg.RefreshCache(cmd.Context()); err != nil {
				return fmt.Errorf("loading entity registry: %w", err)
			}

			res, err := reg.Import(cmd.Context(), snap)
			if err != nil {
				return fmt.Errorf("importing snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"imported %d config entries, %d areas, %d labels, %d devices, %d entities\n",
				res.ConfigEntries, res.Areas, res.Labels, res.Devices, res.Entities)
			return nil
		},
	}
}
