package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"agora/internal/app"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/store"
)

// errUnhealthy makes the process exit non-zero after the report has been
// printed.
var errUnhealthy = errors.New("data service not reachable")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agoractl",
		Short:        "Operate the agora category data",
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newSyncCmd(),
		newCleanupCmd(),
		newRepairCmd(),
		newHealthCmd(),
		newAuditCmd(),
		newHashTokenCmd(),
	)
	return root
}

// openApp loads configuration and wires the services for one command.
func openApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.Open(cmd.Context(), cfg, opts)
}

func newMigrateCmd() *cobra.Command {
	var seed, status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate needs BACKEND=%s, got %q", config.BackendPostgres, cfg.Backend)
			}
			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if status {
				statuses, err := database.Status(ctx, db)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), statuses)
			}

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			if seed {
				return database.Seed(ctx, db)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert development fixtures after migrating")
	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied, without migrating")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create community categories for legacy categories that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app.Options{Valkey: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Reconciler.SyncCategories(cmd.Context()); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "categories in sync")
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Clear community references to categories that no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app.Options{Valkey: true})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Reconciler.CleanupCommunityCategories(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d dangling references\n", n)
			return nil
		},
	}
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Repoint, create or clear invalid community category references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app.Options{Valkey: true})
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.Reconciler.TestAndFixCategorySync(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Success {
				return errors.New(rep.Message)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the data service and print the connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			var ok bool
			if wait > 0 {
				ok = a.Monitor.WaitForConnection(cmd.Context(), wait)
			} else {
				ok = a.Monitor.CheckAvailability(cmd.Context())
			}
			if err := writeJSON(cmd.OutOrStdout(), a.Monitor.State()); err != nil {
				return err
			}
			if !ok {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep probing up to this long for the service to come online")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var (
		limit  int
		action string
		prune  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent category cache invalidations",
		Long: `Prints the newest entries of the cache invalidation log.
With --prune, entries older than the given age are deleted instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			if prune < 0 {
				return fmt.Errorf("--prune must not be negative, got %s", prune)
			}
			a, err := openApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.DB == nil {
				return fmt.Errorf("audit needs BACKEND=%s", config.BackendPostgres)
			}

			auditLog := store.NewCacheLogStore(a.DB)
			out := cmd.OutOrStdout()
			if prune > 0 {
				n, err := auditLog.Prune(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pruned %d entries\n", n)
				return nil
			}

			entries, err := auditLog.RecentEntries(cmd.Context(), limit, action)
			if err != nil {
				return err
			}
			for _, e := range entries {
				id := "-"
				if e.EntityID != nil {
					id = e.EntityID.String()
				}
				fmt.Fprintf(out, "%s  %-8s  %s  %s\n",
					e.InvalidatedAt.Format(time.RFC3339), e.Action, e.EntityType, id)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&action, "action", "", "only show this action (create, update, delete, restore, reorder, sync, cleanup, repair)")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete entries older than this age")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash for ADMIN_TOKEN_HASH",
		Long: `Hashes the given admin token for use in ADMIN_TOKEN_HASH.
Without an argument a random token is generated and printed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var token string
			if len(args) == 1 {
				token = strings.TrimSpace(args[0])
			} else {
				generated, err := randomToken()
				if err != nil {
					return err
				}
				token = generated
				fmt.Fprintf(out, "token: %s\n", token)
			}
			if token == "" {
				return errors.New("token must not be empty")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

// randomToken returns 32 random bytes, base64url encoded.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
