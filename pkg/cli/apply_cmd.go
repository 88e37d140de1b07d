package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"basekit/internal/db"
	"basekit/internal/schema"
)

func newApplyCmd() *cobra.Command {
	var (
		schemaDir   string
		databaseURL string
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the declarative schema to a database",
		Long:  "Compiles the schema and applies the generated tables and row-level security policies to the target database in one transaction.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := schema.LoadDirectory(schemaDir)
			if err != nil {
				return fmt.Errorf("load schema: %w", err)
			}
			if errs := schema.Validate(loaded); len(errs) > 0 {
				fmt.Fprintf(os.Stderr, "Schema has %d validation error(s):\n", len(errs))
				for _, ve := range errs {
					fmt.Fprintf(os.Stderr, "  - %s\n", ve.Error())
				}
				os.Exit(1)
			}
			snap, err := schema.Compile(loaded)
			if err != nil {
				return fmt.Errorf("compile schema: %w", err)
			}

			stmts := loaded.DDL()
			for _, name := range snap.TableNames() {
				stmts = append(stmts, snap.Policies[name].DDL()...)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "About to apply %d statements for %d tables.\n",
				len(stmts), len(loaded.Tables))

			if !autoApprove {
				fmt.Fprint(cmd.OutOrStdout(), "Continue? [y/N]: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			url, err := resolveDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			pool, err := db.Open(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close() //nolint:errcheck

			if err := db.ApplyStatements(cmd.Context(), pool, stmts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "schema", "Path to the schema directory")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Apply without interactive confirmation")

	return cmd
}
