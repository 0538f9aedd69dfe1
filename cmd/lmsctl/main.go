package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	coursehub "github.com/dangerclosesec/coursehub"
	"github.com/dangerclosesec/coursehub/internal/app"
	"github.com/dangerclosesec/coursehub/internal/config"
	"github.com/dangerclosesec/coursehub/internal/database"
	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"
)

var (
	dbConnString string
	verbose      bool
	timeout      time.Duration
)

var (
	reconcileDryRun    bool
	reconcileBatchSize int
	syncDryRun         bool
	grantAccount       string
	grantCourse        string
	grantSeats         int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbConnString, "db", "d", "", "Database connection string (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to run the command")

	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Print what would be done without making changes")
	reconcileCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 100, "Number of purchases to check in one sweep")

	catalogSyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "List the prices that would be imported without saving them")
	catalogCmd.AddCommand(catalogSyncCmd)
	catalogCmd.AddCommand(catalogListCmd)

	seatsGrantCmd.Flags().StringVar(&grantAccount, "account", "", "Team account id")
	seatsGrantCmd.Flags().StringVar(&grantCourse, "course", "", "Course id")
	seatsGrantCmd.Flags().IntVar(&grantSeats, "seats", 0, "Number of seats to add")
	_ = seatsGrantCmd.MarkFlagRequired("account")
	_ = seatsGrantCmd.MarkFlagRequired("course")
	_ = seatsGrantCmd.MarkFlagRequired("seats")
	seatsCmd.AddCommand(seatsGrantCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(seatsCmd)
}

var rootCmd = &cobra.Command{
	Use:   "lmsctl",
	Short: "lmsctl operates the CourseHub database and purchase pipeline",
	Long:  `lmsctl applies schema migrations, reconciles Stripe purchases and manages the course catalog and seat pools.`,
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() *config.Config {
	cfg := config.Load()
	if dbConnString != "" {
		cfg.Database.URL = dbConnString
	}
	return cfg
}

// bootstrap connects to the database and builds the services. The RLS pool
// is skipped: the CLI acts with service privileges.
func bootstrap(ctx context.Context) *app.App {
	logger := newLogger()
	cfg := loadConfig()

	db, err := database.Open(ctx, cfg, gormlogger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	services, err := app.New(ctx, cfg, db, logger, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	return services
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  `Apply the embedded SQL migrations that have not been recorded in schema_migrations.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		cfg := loadConfig()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		migrations, err := database.LoadMigrations(coursehub.MigrationsFS, "migrations")
		if err != nil {
			log.Fatalf("Failed to load migrations: %v", err)
		}

		db, err := database.OpenSQL(ctx, database.DSN(cfg))
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		applied, err := database.RunMigrations(ctx, db, migrations, logger)
		if err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}

		if len(applied) == 0 {
			fmt.Println("No pending migrations")
			return
		}
		fmt.Printf("Applied %d migration(s)\n", len(applied))
		if verbose {
			for _, name := range applied {
				fmt.Println("  - " + name)
			}
		}
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sweep stale pending purchases and expired invitations once",
	Long:  `Re-read every stale pending purchase from Stripe and fulfill, expire or leave it open. Pending invitations past their expiry are closed and their seats released.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		services := bootstrap(ctx)
		defer services.Close()

		services.Reconcile.SetBatchSize(reconcileBatchSize)
		services.Reconcile.SetDryRun(reconcileDryRun)

		result, err := services.Reconcile.Sweep(ctx)
		if errors.Is(err, domain.ErrPaymentsDisabled) {
			// Without Stripe only the invitation pass can run.
			result = &service.SweepResult{}
			result.InvitationsExpired, err = services.Reconcile.ExpireInvitations(ctx)
		}
		if err != nil {
			log.Fatalf("Reconciliation failed: %v", err)
		}
		printJSON(result)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Re-run fulfillment for one checkout session",
	Long:  `Fetch a checkout session from Stripe and reconcile it. Fulfilled sessions are reported and left unchanged.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		services := bootstrap(ctx)
		defer services.Close()

		result, err := services.Purchases.Replay(ctx, args[0])
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		printJSON(result)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the price to course catalog",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import active Stripe prices tagged with a course_id",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		services := bootstrap(ctx)
		defer services.Close()

		result, err := services.Catalog.Sync(ctx, syncDryRun)
		if err != nil {
			log.Fatalf("Catalog sync failed: %v", err)
		}
		printJSON(result)
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		services := bootstrap(ctx)
		defer services.Close()

		products, err := services.Catalog.List(ctx)
		if err != nil {
			log.Fatalf("Failed to list products: %v", err)
		}
		printJSON(products)
	},
}

var seatsCmd = &cobra.Command{
	Use:   "seats",
	Short: "Manage team seat pools",
}

var seatsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add seats to a team account's pool for a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := uuid.Parse(grantAccount)
		if err != nil {
			return fmt.Errorf("invalid --account: %w", err)
		}
		courseID, err := uuid.Parse(grantCourse)
		if err != nil {
			return fmt.Errorf("invalid --course: %w", err)
		}
		if grantSeats <= 0 {
			return fmt.Errorf("--seats must be positive")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		services := bootstrap(ctx)
		defer services.Close()

		pool, err := services.Seats.AllocateSeats(ctx, accountID, courseID, grantSeats)
		if err != nil {
			return fmt.Errorf("granting seats: %w", err)
		}
		printJSON(pool)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
