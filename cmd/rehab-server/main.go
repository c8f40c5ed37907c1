package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/domain/assignment"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/domain/store"
	"github.com/rehab/rehab/internal/platform/db"
	"github.com/rehab/rehab/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rehab-server",
		Short:        "Rehabilitation center API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	if rt.cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token are treated as admin")
	}

	// A failed initial load is not fatal; the snapshot carries the error and
	// POST /reload retries.
	if err := rt.store.LoadAll(ctx); err != nil {
		logger.Error().Err(err).Msg("initial load failed")
	}

	e, err := newServer(rt.cfg, logger, rt.store, rt.backends.accounts, rt.backends.checks...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + rt.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator, cfg *config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrations")
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(ctx, db.NewMigrator(pool, db.Migrations(), cfg.DBSchema), cfg)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, cfg *config.Config) error {
			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) to schema %s.\n", count, cfg.DBSchema)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, cfg *config.Config) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrations(os.Stdout, cfg.DBSchema, statuses)
			return nil
		}),
	})

	return cmd
}

func printMigrations(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}

func assignCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign unassigned patients to the least loaded buddies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.store.LoadAll(ctx); err != nil {
				return err
			}

			svc := assignment.NewService(rt.store, rt.cfg.HighLoad, rt.logger)
			if dryRun {
				printAssignments(os.Stdout, svc.DryRun(), true)
				return nil
			}
			done, err := svc.Run(ctx)
			printAssignments(os.Stdout, done, false)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without writing it")
	return cmd
}

func printAssignments(w io.Writer, as []assignment.Assignment, dryRun bool) {
	if len(as) == 0 {
		fmt.Fprintln(w, "No patients to assign.")
		return
	}
	verb := "Assigned"
	if dryRun {
		verb = "Would assign"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATIENT\tBUDDY")
	for _, a := range as {
		fmt.Fprintf(tw, "%s (%s)\t%s (%s)\n", a.PatientName, a.PatientID, a.BuddyName, a.BuddyID)
	}
	tw.Flush()
	fmt.Fprintf(w, "%s %d patient(s).\n", verb, len(as))
}

func leaderboardCmd() *cobra.Command {
	var rangeFlag string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank buddies by patient ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := stats.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.store.LoadAll(ctx); err != nil {
				return err
			}
			printLeaderboard(os.Stdout, stats.Leaderboard(rt.store.Snapshot(), r, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", string(stats.Last30Days), "7days, 30days, 90days or all")
	return cmd
}

func printLeaderboard(w io.Writer, rows []stats.Performance) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No rated sessions in range.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBUDDY\tAVG\tSATISFACTION\tSESSIONS\tTIER\tSUGGESTED\tTREND")
	for i, p := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f%%\t%d\t%s\t%s\t%s\n",
			i+1, p.Name, p.AverageRating, p.SatisfactionRate, p.TotalRatings,
			p.CurrentTier, p.SuggestedTier, p.Trend)
	}
	tw.Flush()
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative tasks",
	}

	var in store.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a staff user with a login account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			id, err := rt.store.AddUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s %s (%s).\n", in.Role, in.Email, id)
			return nil
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "Login email")
	create.Flags().StringVar(&in.Name, "name", "", "Display name")
	create.Flags().StringVar(&in.Password, "password", "", "Initial password")
	create.Flags().StringVar(&in.Role, "role", "admin", "admin, doctor, nurse or buddy")
	create.MarkFlagRequired("email")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func seedCmd() *cobra.Command {
	cfg := sandbox.DefaultSeedConfig()
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the store with synthetic demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cfg.IsProduction() && !force {
				return errors.New("refusing to seed a production environment without --force")
			}
			if err := rt.store.LoadAll(ctx); err != nil {
				return err
			}

			result, err := sandbox.NewSeeder(rt.store, cfg).Run(ctx)
			printSeedResult(os.Stdout, result, cfg.Password)
			return err
		},
	}
	f := cmd.Flags()
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed; 0 picks one from the clock")
	f.IntVar(&cfg.Doctors, "doctors", cfg.Doctors, "Doctors to create")
	f.IntVar(&cfg.Nurses, "nurses", cfg.Nurses, "Nurses to create")
	f.IntVar(&cfg.Buddies, "buddies", cfg.Buddies, "Buddies to create")
	f.IntVar(&cfg.Patients, "patients", cfg.Patients, "Patients to create")
	f.IntVar(&cfg.SessionsPerPatient, "sessions", cfg.SessionsPerPatient, "Completed sessions per assigned patient")
	f.IntVar(&cfg.Unassigned, "unassigned", cfg.Unassigned, "Patients left without a buddy")
	f.StringVar(&cfg.Password, "password", cfg.Password, "Password for every generated login")
	f.StringVar(&cfg.EmailDomain, "domain", sandbox.DefaultEmailDomain, "Email domain for generated users")
	f.BoolVar(&force, "force", false, "Allow seeding when ENV is production")
	return cmd
}

func printSeedResult(w io.Writer, r *sandbox.SeedResult, password string) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Seeded %d staff, %d patients, %d sessions (%d rated) in %dms.\n",
		r.Users, r.Patients, r.Sessions, r.Ratings, r.DurationMs)
	if len(r.Emails) > 0 {
		fmt.Fprintf(w, "Logins use password %q, e.g. %s\n", password, r.Emails[0])
	}
}
