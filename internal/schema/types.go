// Package schema loads and validates the declarative application schema:
// tables, columns, and permission rules described in YAML. Validation
// failures are configuration errors that abort startup; a schema that loads
// cleanly compiles into an immutable permission snapshot.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SupportedAPIVersion is the only accepted apiVersion value.
const SupportedAPIVersion = "v1"

// KindTable is the document kind for a table declaration.
const KindTable = "Table"

// ObjectMeta holds common metadata for named resources.
type ObjectMeta struct {
	Name string `yaml:"name"`
}

// TableDoc declares one application table.
type TableDoc struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata"`
	Spec       TableSpec  `yaml:"spec"`
}

// TableSpec holds the configuration for a table.
type TableSpec struct {
	OrganizationScoped bool                  `yaml:"organization_scoped,omitempty"`
	Columns            []ColumnDef           `yaml:"columns,omitempty"`
	Permissions        PermissionSpec        `yaml:"permissions,omitempty"`
	Fields             []FieldPermissionSpec `yaml:"fields,omitempty"`
}

// ColumnDef describes a single column in a table definition.
type ColumnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
}

// PermissionSpec declares the per-operation rules for a table, or an
// inheritance reference with optional per-operation overrides.
type PermissionSpec struct {
	Read     *RuleSpec     `yaml:"read,omitempty"`
	Create   *RuleSpec     `yaml:"create,omitempty"`
	Update   *RuleSpec     `yaml:"update,omitempty"`
	Delete   *RuleSpec     `yaml:"delete,omitempty"`
	Inherit  string        `yaml:"inherit,omitempty"`
	Override *OverrideSpec `yaml:"override,omitempty"`
}

// OverrideSpec replaces individual inherited operations by name.
type OverrideSpec struct {
	Read   *RuleSpec `yaml:"read,omitempty"`
	Create *RuleSpec `yaml:"create,omitempty"`
	Update *RuleSpec `yaml:"update,omitempty"`
	Delete *RuleSpec `yaml:"delete,omitempty"`
}

// FieldPermissionSpec narrows table-level access for one column.
type FieldPermissionSpec struct {
	Field    string    `yaml:"field"`
	Read     *RuleSpec `yaml:"read,omitempty"`
	Write    *RuleSpec `yaml:"write,omitempty"`
	ReadOnly bool      `yaml:"read_only,omitempty"`
}

// RuleSpec is the YAML form of one permission rule. It accepts either a
// scalar shorthand ("all", "authenticated", "none") or a mapping with
// exactly one of roles, condition, or and:
//
//	read: all
//	create: { roles: [editor, admin] }
//	update: { condition: "{userId} = author_id AND status != 'published'" }
//	delete: { and: [ { roles: [admin] }, { condition: "status = 'draft'" } ] }
type RuleSpec struct {
	Shorthand string
	Roles     []string
	Condition string
	And       []RuleSpec
}

// ruleSpecMapping mirrors the mapping form for strict decoding.
type ruleSpecMapping struct {
	Roles     []string   `yaml:"roles,omitempty"`
	Condition string     `yaml:"condition,omitempty"`
	And       []RuleSpec `yaml:"and,omitempty"`
}

// UnmarshalYAML implements custom decoding for the scalar-or-mapping rule
// forms.
func (r *RuleSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		r.Shorthand = value.Value
		return nil
	case yaml.MappingNode:
		var m ruleSpecMapping
		if err := value.Decode(&m); err != nil {
			return err
		}
		r.Roles = m.Roles
		r.Condition = m.Condition
		r.And = m.And
		return nil
	}
	return fmt.Errorf("line %d: permission rule must be a string or a mapping", value.Line)
}

// TableResource is a table declaration with its source file context.
type TableResource struct {
	Name string
	Path string // file the table was declared in, for error messages
	Spec TableSpec
}

// Schema is the fully-parsed declarative application schema.
type Schema struct {
	Tables []TableResource
}

// Table returns the declaration for the named table, if present.
func (s *Schema) Table(name string) (*TableResource, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
