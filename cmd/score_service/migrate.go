package main

import (
	"errors"

	"score_service/internal/config"
	"score_service/internal/storage/postgres"

	"github.com/spf13/cobra"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, postgres.MigrateUp)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, postgres.MigrateDown)
		},
	})

	return cmd
}

func runMigrate(cmd *cobra.Command, fn func(dsn string) error) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	if cfg.Storage.Driver != config.DriverPostgres {
		return errors.New("migrations require the postgres storage driver")
	}

	cmd.Println("Running migrations...")
	if err := fn(cfg.Storage.DSN); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
