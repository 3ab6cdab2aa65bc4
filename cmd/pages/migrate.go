package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/store"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(c.cfg.DatabaseURL) == "" {
				return fmt.Errorf("database_url is not configured")
			}
			conn, err := store.Open(cmd.Context(), c.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer conn.Close()

			migrations, err := store.MigrationSource(c.cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := store.ApplyMigrations(cmd.Context(), conn, migrations); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			log.Printf("Migrations applied")
			return nil
		},
	}
}
