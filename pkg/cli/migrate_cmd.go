package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"basekit/internal/config"
	"basekit/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the system table migrations",
		Long:  "Applies the embedded migrations for the system tables (users, organizations, audit log) to the target database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := resolveDatabaseURL(databaseURL)
			if err != nil {
				return err
			}

			pool, err := db.Open(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close() //nolint:errcheck

			if err := db.RunMigrations(pool); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")

	return cmd
}

func resolveDatabaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	_ = config.LoadDotEnv(".env")
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no database configured: pass --database-url or set DATABASE_URL")
}
