package permission

import (
	"fmt"
	"strings"

	"basekit/internal/domain"
)

// TablePolicies holds the compiled row-level-security expressions for one
// table, one boolean SQL fragment per CRUD command. INSERT policies are
// evaluated against the proposed row (WITH CHECK); SELECT, UPDATE, and
// DELETE against the existing row (USING) — an UPDATE condition over mutable
// columns therefore sees the pre-update state, producing the "viewable but
// not editable" behavior.
type TablePolicies struct {
	Table  string
	Select string
	Insert string
	Update string
	Delete string
}

// CompilePolicies translates a resolved permission set into RLS policy
// expressions. Both this compiler and the request-time evaluator derive from
// the same rule representation, keeping the two enforcement layers
// consistent by construction.
func CompilePolicies(set *TableSet) TablePolicies {
	return TablePolicies{
		Table:  set.Name,
		Select: policyExpr(set, domain.OpRead),
		Insert: policyExpr(set, domain.OpCreate),
		Update: policyExpr(set, domain.OpUpdate),
		Delete: policyExpr(set, domain.OpDelete),
	}
}

// policyExpr renders the policy for one operation. Organization scoping
// always contributes an organization_id conjunct, ANDed with whatever the
// rule itself compiles to.
func policyExpr(set *TableSet, op domain.Operation) string {
	expr := ruleSQL(set.Rules[op])
	if set.OrganizationScoped {
		orgConjunct := fmt.Sprintf("(%s = %s)", quoteIdent("organization_id"), sqlForVar(VarOrganizationID))
		if expr == "true" {
			return orgConjunct
		}
		return "(" + expr + " AND " + orgConjunct + ")"
	}
	return expr
}

// ruleSQL compiles a single rule to a boolean SQL fragment.
func ruleSQL(rule *Rule) string {
	if rule == nil {
		return "false"
	}
	switch rule.Kind {
	case KindAllowAll:
		return "true"
	case KindDenyAll:
		return "false"
	case KindAuthenticated:
		return fmt.Sprintf("(%s IS NOT NULL)", sqlForVar(VarUserID))
	case KindRoles:
		quoted := make([]string, len(rule.Roles))
		for i, role := range rule.Roles {
			quoted[i] = "'" + strings.ReplaceAll(role, "'", "''") + "'"
		}
		return fmt.Sprintf("(%s IN (%s))", sqlForVar(VarRoles), strings.Join(quoted, ", "))
	case KindCustom:
		return SQL(rule.Condition)
	case KindAnd:
		parts := make([]string, len(rule.All))
		for i, child := range rule.All {
			parts[i] = ruleSQL(child)
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	}
	return "false"
}

// DDL renders the statements that install the policies: enable (and force)
// row-level security, then drop-and-recreate one policy per command. The
// statements are idempotent so schema apply can run repeatedly.
func (p TablePolicies) DDL() []string {
	table := quoteIdent(p.Table)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;", table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY;", table),
	}

	type policy struct {
		name    string
		command string
		clause  string
		expr    string
	}
	policies := []policy{
		{p.Table + "_select", "SELECT", "USING", p.Select},
		{p.Table + "_insert", "INSERT", "WITH CHECK", p.Insert},
		{p.Table + "_update", "UPDATE", "USING", p.Update},
		{p.Table + "_delete", "DELETE", "USING", p.Delete},
	}
	for _, pol := range policies {
		stmts = append(stmts,
			fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", quoteIdent(pol.name), table),
			fmt.Sprintf("CREATE POLICY %s ON %s FOR %s %s (%s);",
				quoteIdent(pol.name), table, pol.command, pol.clause, pol.expr),
		)
	}
	return stmts
}
