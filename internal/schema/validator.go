package schema

import (
	"fmt"
	"regexp"

	"basekit/internal/domain"
)

// identifierPattern restricts table and column names to safe SQL
// identifiers; compiled policy and query SQL interpolates them directly.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Valid column types and their Postgres mapping.
var validColumnTypes = map[string]string{
	"text":      "text",
	"integer":   "bigint",
	"number":    "double precision",
	"boolean":   "boolean",
	"timestamp": "timestamptz",
	"date":      "date",
	"json":      "jsonb",
}

// reservedTableNames are system tables the declarative schema may not claim.
var reservedTableNames = map[string]bool{
	"users":                true,
	"organizations":        true,
	"organization_members": true,
	"audit_log":            true,
	"goose_db_version":     true,
}

// systemColumnNames are added to every table by the platform and may not be
// declared explicitly (organization_id is the exception: organization-scoped
// tables must declare it).
var systemColumnNames = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// Validate checks the parsed schema for structural problems: bad names,
// unknown column types, malformed rules, field overlays referencing unknown
// columns, and missing or mistyped organization_id on organization-scoped
// tables. It returns every problem found; a non-empty result must abort
// startup. Inheritance cycles and dangling targets are detected later, when
// the schema compiles into a permission snapshot.
func Validate(s *Schema) []*domain.ConfigError {
	var errs []*domain.ConfigError
	report := func(path, format string, args ...any) {
		errs = append(errs, domain.ErrConfig(path, format, args...))
	}

	seen := map[string]string{}
	for _, table := range s.Tables {
		path := table.Path

		if !identifierPattern.MatchString(table.Name) {
			report(path, "table name %q is not a valid identifier", table.Name)
		}
		if reservedTableNames[table.Name] {
			report(path, "table name %q is reserved", table.Name)
		}
		if prev, dup := seen[table.Name]; dup {
			report(path, "table %q already declared in %s", table.Name, prev)
		}
		seen[table.Name] = path

		columns := map[string]string{}
		for _, col := range table.Spec.Columns {
			if !identifierPattern.MatchString(col.Name) {
				report(path, "column name %q is not a valid identifier", col.Name)
				continue
			}
			if systemColumnNames[col.Name] {
				report(path, "column %q is a system column and may not be declared", col.Name)
				continue
			}
			if _, ok := validColumnTypes[col.Type]; !ok {
				report(path, "column %q has unknown type %q", col.Name, col.Type)
			}
			if _, dup := columns[col.Name]; dup {
				report(path, "column %q declared more than once", col.Name)
			}
			columns[col.Name] = col.Type
		}

		// Organization scoping requires a text organization_id column.
		// Checked here, at schema load; a failure aborts startup rather
		// than silently skipping tenant isolation.
		orgType, hasOrg := columns["organization_id"]
		if table.Spec.OrganizationScoped {
			if !hasOrg {
				report(path, "organization-scoped table %q must declare an organization_id column of type text", table.Name)
			} else if orgType != "text" {
				report(path, "organization_id on table %q must be of type text, got %q", table.Name, orgType)
			}
		} else if hasOrg {
			report(path, "table %q declares organization_id but is not organization_scoped", table.Name)
		}

		validateRules(&table, report)
		validateFields(&table, columns, report)
	}

	return errs
}

func validateRules(table *TableResource, report func(path, format string, args ...any)) {
	perms := table.Spec.Permissions
	for op, rule := range operationRules(perms) {
		validateRuleSpec(table.Path, fmt.Sprintf("%s rule", op), rule, report)
	}
	if perms.Override != nil {
		if perms.Inherit == "" {
			report(table.Path, "override requires inherit on table %q", table.Name)
		}
		for op, rule := range overrideRules(perms.Override) {
			validateRuleSpec(table.Path, fmt.Sprintf("override %s rule", op), rule, report)
		}
	}
}

func operationRules(p PermissionSpec) map[string]*RuleSpec {
	out := map[string]*RuleSpec{}
	if p.Read != nil {
		out["read"] = p.Read
	}
	if p.Create != nil {
		out["create"] = p.Create
	}
	if p.Update != nil {
		out["update"] = p.Update
	}
	if p.Delete != nil {
		out["delete"] = p.Delete
	}
	return out
}

func overrideRules(o *OverrideSpec) map[string]*RuleSpec {
	out := map[string]*RuleSpec{}
	if o.Read != nil {
		out["read"] = o.Read
	}
	if o.Create != nil {
		out["create"] = o.Create
	}
	if o.Update != nil {
		out["update"] = o.Update
	}
	if o.Delete != nil {
		out["delete"] = o.Delete
	}
	return out
}

func validateRuleSpec(path, context string, rule *RuleSpec, report func(path, format string, args ...any)) {
	forms := 0
	if rule.Shorthand != "" {
		forms++
		switch rule.Shorthand {
		case "all", "authenticated", "none":
		default:
			report(path, "%s: unknown shorthand %q (expected all, authenticated, or none)", context, rule.Shorthand)
		}
	}
	if len(rule.Roles) > 0 {
		forms++
		for _, role := range rule.Roles {
			if role == "" {
				report(path, "%s: empty role name", context)
			}
		}
	}
	if rule.Condition != "" {
		forms++
	}
	if len(rule.And) > 0 {
		forms++
		for i := range rule.And {
			validateRuleSpec(path, fmt.Sprintf("%s (and[%d])", context, i), &rule.And[i], report)
		}
	}
	if forms != 1 {
		report(path, "%s: specify exactly one of a shorthand, roles, condition, or and", context)
	}
}

func validateFields(table *TableResource, columns map[string]string, report func(path, format string, args ...any)) {
	seen := map[string]bool{}
	for _, f := range table.Spec.Fields {
		if _, ok := columns[f.Field]; !ok {
			report(table.Path, "field rule references unknown column %q on table %q", f.Field, table.Name)
			continue
		}
		if seen[f.Field] {
			report(table.Path, "field %q has more than one rule entry", f.Field)
		}
		seen[f.Field] = true

		if f.ReadOnly && f.Write != nil {
			report(table.Path, "field %q is read_only and may not also declare a write rule", f.Field)
		}
		if f.Read != nil {
			validateRuleSpec(table.Path, fmt.Sprintf("field %q read rule", f.Field), f.Read, report)
		}
		if f.Write != nil {
			validateRuleSpec(table.Path, fmt.Sprintf("field %q write rule", f.Field), f.Write, report)
		}
	}
}
