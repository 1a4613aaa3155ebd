package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the scheduling database schema",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(downCmd())
	rootCmd.AddCommand(forceCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Up(); err != nil {
					if errors.Is(err, migrate.ErrNoChange) {
						fmt.Println("schema already up to date")
						return nil
					}
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Println("migrations complete")
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")

			return withMigrator(func(m *migrate.Migrate) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Println("rollback complete")
				return nil
			})
		},
	}
	cmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.Flags().Bool("all", false, "Roll back every migration")
	return cmd
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				fmt.Printf("forced version to %d\n", version)
				return nil
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				fmt.Printf("version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	}
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}
