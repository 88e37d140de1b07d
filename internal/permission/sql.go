package permission

import (
	"fmt"
	"strconv"
	"strings"
)

// Session variables installed per transaction by the data-access layer and
// read back by the compiled RLS policies. set_config(..., true) scopes them
// to the transaction, so concurrent requests on pooled connections never
// observe each other's identity.
const (
	SettingUserID         = "app.user_id"
	SettingOrganizationID = "app.organization_id"
	SettingRole           = "app.role"
)

// sqlForVar maps a condition variable to its session-variable lookup. The
// second argument to current_setting suppresses the error when the variable
// is unset, yielding NULL, which rejects under SQL comparison semantics —
// the same outcome the in-process evaluator produces for an empty session
// value.
func sqlForVar(name string) string {
	switch name {
	case VarUserID:
		return fmt.Sprintf("nullif(current_setting('%s', true), '')", SettingUserID)
	case VarOrganizationID:
		return fmt.Sprintf("nullif(current_setting('%s', true), '')", SettingOrganizationID)
	case VarRoles:
		return fmt.Sprintf("nullif(current_setting('%s', true), '')", SettingRole)
	}
	return "NULL"
}

// SQL renders the expression as a Postgres boolean fragment suitable for a
// row-level-security policy. Column references are emitted bare (they are
// validated against the table's declared columns at compile time), string
// literals are quote-escaped, and variables become current_setting lookups.
func SQL(e Expr) string {
	switch n := e.(type) {
	case *ColumnRef:
		return quoteIdent(n.Name)
	case *VarRef:
		return sqlForVar(n.Name)
	case *Literal:
		switch n.Type {
		case LiteralString:
			return "'" + strings.ReplaceAll(n.String, "'", "''") + "'"
		case LiteralNumber:
			return strconv.FormatFloat(n.Number, 'f', -1, 64)
		case LiteralBool:
			if n.Bool {
				return "true"
			}
			return "false"
		case LiteralNull:
			return "NULL"
		}
	case *NullCheck:
		if n.Negated {
			return "(" + SQL(n.Operand) + " IS NOT NULL)"
		}
		return "(" + SQL(n.Operand) + " IS NULL)"
	case *BinaryExpr:
		op := sqlOp(n.Op)
		left := SQL(n.Left)
		right := SQL(n.Right)
		// Comparing a session variable (text) against a numeric column or
		// literal needs a cast on the variable side.
		if isNumericContext(n) {
			if v, ok := n.Left.(*VarRef); ok {
				left = "(" + sqlForVar(v.Name) + ")::numeric"
			}
			if v, ok := n.Right.(*VarRef); ok {
				right = "(" + sqlForVar(v.Name) + ")::numeric"
			}
		}
		return "(" + left + " " + op + " " + right + ")"
	}
	return "false"
}

func sqlOp(t TokenType) string {
	switch t {
	case TokenEq:
		return "="
	case TokenNe:
		return "<>"
	case TokenLt:
		return "<"
	case TokenLe:
		return "<="
	case TokenGt:
		return ">"
	case TokenGe:
		return ">="
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	}
	return t.String()
}

// isNumericContext reports whether a comparison pairs a variable with a
// numeric literal, which requires casting the text session variable.
func isNumericContext(n *BinaryExpr) bool {
	if n.Op == TokenAnd || n.Op == TokenOr {
		return false
	}
	if lit, ok := n.Left.(*Literal); ok && lit.Type == LiteralNumber {
		_, isVar := n.Right.(*VarRef)
		return isVar
	}
	if lit, ok := n.Right.(*Literal); ok && lit.Type == LiteralNumber {
		_, isVar := n.Left.(*VarRef)
		return isVar
	}
	return false
}

// quoteIdent double-quotes an identifier for safe inclusion in DDL. Names
// are already restricted to [a-z_][a-z0-9_]* by schema validation; quoting
// guards against keyword collisions.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
