package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anhhung04/plant-care/internal/auth"
	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/control"
	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/config"
	"github.com/anhhung04/plant-care/internal/infrastructure/database"
	"github.com/anhhung04/plant-care/internal/infrastructure/mqtt"
	"github.com/anhhung04/plant-care/migrations"
)

// drainPoll is how often a one-shot tick checks for due jobs still firing.
const drainPoll = 50 * time.Millisecond

// ─── migrate ────────────────────────────────────────────────────────

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or list schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts.resolveConfigPath())
			if err != nil {
				return err
			}
			db, err := database.Open(cmd.Context(), database.Config{
				Path:        cfg.Database.Path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			switch {
			case status:
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			case down:
				if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				log.Info("rolled back latest migration")
			default:
				if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				log.Info("database migrations complete")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "List applied and pending migrations")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}

func printMigrationStatus(ctx context.Context, out io.Writer, db *database.DB) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT")
	fmt.Fprintln(w, "-------\t-----\t----------")
	for _, m := range applied {
		fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "%s\tpending\t-\n", m.Version)
	}
	return w.Flush()
}

// ─── reconcile ──────────────────────────────────────────────────────

func newReconcileCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation tick and exit",
		Long: "Runs one tick against the field store. Immediate actuations and jobs that are " +
			"already due are sent before exit; jobs due later are listed and dropped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcileOnce(cmd.Context(), opts.resolveConfigPath(), cmd.OutOrStdout())
		},
	}
}

func runReconcileOnce(ctx context.Context, configPath string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	var publisher control.Publisher
	if cfg.Dispatcher.Mode == config.DispatcherModeMQTT {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer mqttClient.Close()
		publisher = mqttClient
	}

	reconciler, err := newReconciler(cfg, log, greenhouse.NewSQLiteRepository(db.DB), publisher, nil, nil)
	if err != nil {
		return err
	}
	sched := reconciler.Scheduler()
	defer sched.Stop()

	res, err := reconciler.Tick(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation tick: %w", err)
	}
	drainDueJobs(ctx, sched, cfg.CallTimeout())

	fmt.Fprintf(out, "greenhouses=%d devices=%d jobs_scheduled=%d actuations=%d skipped=%d duration=%s\n",
		res.Greenhouses, res.Devices, res.JobsScheduled, res.Actuations, res.Skipped, res.Duration)
	for _, rec := range sched.Recent() {
		fmt.Fprintf(out, "%s\t%s\n", rec.Outcome, rec.Job.Key)
	}
	for _, job := range sched.Pending() {
		fmt.Fprintf(out, "dropped\t%s\t(due %s)\n", job.Key, job.RunAt.Format(time.RFC3339))
	}
	return nil
}

// drainDueJobs waits, up to limit, until no pending job is already due.
func drainDueJobs(ctx context.Context, sched *automation.Scheduler, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		due := false
		for _, job := range sched.Pending() {
			if !job.RunAt.After(time.Now()) {
				due = true
				break
			}
		}
		if !due {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(drainPoll):
		}
	}
}

// ─── token ──────────────────────────────────────────────────────────

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts.resolveConfigPath())
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}

			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Token subject (operator name)")
	cmd.Flags().StringVarP(&role, "role", "r", string(auth.RoleViewer), "Role: viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default security.jwt.access_token_ttl)")
	//nolint:errcheck // flag is defined above
	cmd.MarkFlagRequired("subject")
	return cmd
}
