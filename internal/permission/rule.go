// Package permission implements the permission compilation and dual-layer
// authorization engine: declarative rules are compiled once at schema load
// into an immutable snapshot that backs both the request-time evaluator and
// the database row-level-security policies.
package permission

import (
	"sort"
	"strings"

	"basekit/internal/domain"
)

// RuleKind discriminates the variants of a permission rule.
type RuleKind int

const (
	// KindAllowAll grants the operation unconditionally.
	KindAllowAll RuleKind = iota
	// KindDenyAll denies the operation for every actor.
	KindDenyAll
	// KindAuthenticated grants the operation to any signed-in actor.
	KindAuthenticated
	// KindRoles grants the operation when the actor's role is in the set.
	KindRoles
	// KindCustom evaluates a parsed condition over row columns and session
	// variables.
	KindCustom
	// KindAnd requires every child rule to grant the operation.
	KindAnd
)

// Rule is the compiled form of one permission expression. Rules are built at
// schema load time and never mutated afterwards.
type Rule struct {
	Kind      RuleKind
	Roles     []string // KindRoles
	Condition Expr     // KindCustom
	All       []*Rule  // KindAnd
}

// AllowAll returns the unconditional-grant rule.
func AllowAll() *Rule { return &Rule{Kind: KindAllowAll} }

// DenyAll returns the unconditional-deny rule. It is the default for
// operations with no declared rule and the write rule of read-only fields.
func DenyAll() *Rule { return &Rule{Kind: KindDenyAll} }

// Authenticated returns the any-signed-in-actor rule.
func Authenticated() *Rule { return &Rule{Kind: KindAuthenticated} }

// Roles returns a role-membership rule over the given role names.
func Roles(roles ...string) *Rule {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return &Rule{Kind: KindRoles, Roles: sorted}
}

// Custom returns a rule backed by a parsed condition expression.
func Custom(cond Expr) *Rule { return &Rule{Kind: KindCustom, Condition: cond} }

// And returns a composite rule granting only when all children grant.
func And(rules ...*Rule) *Rule { return &Rule{Kind: KindAnd, All: rules} }

// HasRole reports whether the given role is a member of a KindRoles rule.
func (r *Rule) HasRole(role string) bool {
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// RequiresRow reports whether evaluating the rule needs a candidate row.
// Rules that reference row columns cannot be decided at the table-level gate
// alone; for list reads the row filtering is the RLS layer's job.
func (r *Rule) RequiresRow() bool {
	switch r.Kind {
	case KindCustom:
		return exprReferencesColumns(r.Condition)
	case KindAnd:
		for _, child := range r.All {
			if child.RequiresRow() {
				return true
			}
		}
	}
	return false
}

// String renders a compact description of the rule, used in deny reasons and
// configuration error messages.
func (r *Rule) String() string {
	switch r.Kind {
	case KindAllowAll:
		return "all"
	case KindDenyAll:
		return "none"
	case KindAuthenticated:
		return "authenticated"
	case KindRoles:
		return "roles(" + strings.Join(r.Roles, ",") + ")"
	case KindCustom:
		return "condition(" + FormatExpr(r.Condition) + ")"
	case KindAnd:
		parts := make([]string, len(r.All))
		for i, child := range r.All {
			parts[i] = child.String()
		}
		return "and(" + strings.Join(parts, "; ") + ")"
	}
	return "unknown"
}

// FieldRule narrows table-level access for a single column. A nil Read or
// Write means the field inherits the table-level rule for that operation.
type FieldRule struct {
	Field string
	Read  *Rule
	Write *Rule
}

// TableConfig is the raw per-table input to the resolver: the table's own
// rules, its inheritance declaration, and its field overlays. The schema
// loader produces these from YAML.
type TableConfig struct {
	Name               string
	Inherit            string
	Override           map[domain.Operation]*Rule
	Rules              map[domain.Operation]*Rule
	OrganizationScoped bool
	Fields             []FieldRule
	Columns            map[string]string // column name -> declared type
}

// TableSet is a fully-resolved, immutable permission set for one table.
type TableSet struct {
	Name               string
	OrganizationScoped bool
	Rules              map[domain.Operation]*Rule // all four operations present
	Fields             map[string]FieldRule
	Columns            map[string]string
}

// Rule returns the resolved rule for the given operation.
func (t *TableSet) Rule(op domain.Operation) *Rule {
	return t.Rules[op]
}
