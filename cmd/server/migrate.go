package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/prudhvinik1/edgerelay/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var (
		databaseURL string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the accounts and messages tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := database.NewPostgresPool(ctx, databaseURL, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("Schema applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"),
		"Postgres connection string (default: $DATABASE_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second,
		"Give up after this long")

	return cmd
}
