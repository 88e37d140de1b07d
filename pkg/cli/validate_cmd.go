package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"basekit/internal/schema"
)

func newValidateCmd() *cobra.Command {
	var (
		schemaDir          string
		allowUnknownFields bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the declarative schema offline",
		Long:  "Reads the schema YAML files and checks them for errors without contacting a database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := schema.LoadDirectoryWithOptions(schemaDir, schema.LoadOptions{
				AllowUnknownFields: allowUnknownFields,
			})
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

			// Rule conditions only parse during compilation, so run it too.
			if _, err := schema.Compile(loaded); err != nil {
				return fmt.Errorf("compile schema: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is valid (%d tables).\n", len(loaded.Tables))
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "schema", "Path to the schema directory")
	cmd.Flags().BoolVar(&allowUnknownFields, "allow-unknown-fields", false, "Allow unknown YAML fields")

	return cmd
}
