package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"basekit/internal/schema"
)

func newDDLCmd() *cobra.Command {
	var schemaDir string

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the SQL generated from the declarative schema",
		Long:  "Compiles the schema and prints the CREATE TABLE statements and row-level security policies that would be applied, without touching a database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := schema.LoadDirectory(schemaDir)
			if err != nil {
				return fmt.Errorf("load schema: %w", err)
			}
			snap, err := schema.Compile(loaded)
			if err != nil {
				return fmt.Errorf("compile schema: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, stmt := range loaded.DDL() {
				fmt.Fprintln(out, stmt)
				fmt.Fprintln(out)
			}
			for _, name := range snap.TableNames() {
				for _, stmt := range snap.Policies[name].DDL() {
					fmt.Fprintln(out, stmt)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "schema", "Path to the schema directory")

	return cmd
}
