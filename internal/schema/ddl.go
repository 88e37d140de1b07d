package schema

import (
	"fmt"
	"strings"
)

// TableDDL renders the CREATE TABLE statement for one declared table. Every
// table gets the system columns (text id primary key, created_at and
// updated_at timestamps); organization-scoped tables additionally carry a
// NOT NULL organization_id. The statement is idempotent so schema apply can
// run repeatedly; column removal and type changes are deliberately out of
// scope here.
func TableDDL(table *TableResource) string {
	var cols []string
	cols = append(cols, `"id" text PRIMARY KEY`)

	for _, col := range table.Spec.Columns {
		if col.Name == "organization_id" {
			// Declared explicitly on organization-scoped tables; rendered
			// with tenant constraints below.
			continue
		}
		pgType := validColumnTypes[col.Type]
		def := fmt.Sprintf("%q %s", col.Name, pgType)
		if col.Required {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	if table.Spec.OrganizationScoped {
		cols = append(cols, `"organization_id" text NOT NULL`)
	}

	cols = append(cols,
		`"created_at" timestamptz NOT NULL DEFAULT now()`,
		`"updated_at" timestamptz NOT NULL DEFAULT now()`,
	)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n    %s\n);",
		table.Name, strings.Join(cols, ",\n    "))
}

// DDL renders the CREATE TABLE statements for the whole schema in
// declaration order.
func (s *Schema) DDL() []string {
	stmts := make([]string, 0, len(s.Tables))
	for i := range s.Tables {
		stmts = append(stmts, TableDDL(&s.Tables[i]))
	}
	return stmts
}
