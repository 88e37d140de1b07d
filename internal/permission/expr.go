package permission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known session variable names usable inside custom conditions.
const (
	VarUserID         = "userId"
	VarOrganizationID = "organizationId"
	VarRoles          = "roles"
)

// Session carries the substituted values for the well-known variables when a
// condition is evaluated in-process.
type Session struct {
	UserID         string
	OrganizationID string
	Role           string
}

// Expr is a node in a parsed permission condition. Conditions are
// side-effect-free boolean expressions over row columns and the well-known
// session variables. The same tree backs both the in-process evaluator and
// the RLS SQL emitter so the two layers cannot drift.
type Expr interface {
	exprNode()
}

// BinaryExpr represents a binary expression (left op right).
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NullCheck represents IS NULL / IS NOT NULL.
type NullCheck struct {
	Operand Expr
	Negated bool
}

func (*NullCheck) exprNode() {}

// ColumnRef references a column of the target table by name.
type ColumnRef struct {
	Name string
}

func (*ColumnRef) exprNode() {}

// VarRef references one of the well-known session variables ({userId},
// {organizationId}, {roles}).
type VarRef struct {
	Name string
}

func (*VarRef) exprNode() {}

// LiteralType represents the type of a literal.
type LiteralType int

const (
	LiteralString LiteralType = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal represents a literal value (string, number, bool, null).
type Literal struct {
	Type   LiteralType
	String string
	Number float64
	Bool   bool
}

func (*Literal) exprNode() {}

// exprReferencesColumns reports whether any node in the tree is a ColumnRef.
func exprReferencesColumns(e Expr) bool {
	switch n := e.(type) {
	case *ColumnRef:
		return true
	case *BinaryExpr:
		return exprReferencesColumns(n.Left) || exprReferencesColumns(n.Right)
	case *NullCheck:
		return exprReferencesColumns(n.Operand)
	}
	return false
}

// WalkColumns calls fn for every column reference in the tree.
func WalkColumns(e Expr, fn func(name string)) {
	switch n := e.(type) {
	case *ColumnRef:
		fn(n.Name)
	case *BinaryExpr:
		WalkColumns(n.Left, fn)
		WalkColumns(n.Right, fn)
	case *NullCheck:
		WalkColumns(n.Operand, fn)
	}
}

// FormatExpr renders the expression back to its source-like form.
func FormatExpr(e Expr) string {
	switch n := e.(type) {
	case *ColumnRef:
		return n.Name
	case *VarRef:
		return "{" + n.Name + "}"
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
			return "null"
		}
	case *NullCheck:
		if n.Negated {
			return FormatExpr(n.Operand) + " IS NOT NULL"
		}
		return FormatExpr(n.Operand) + " IS NULL"
	case *BinaryExpr:
		return "(" + FormatExpr(n.Left) + " " + n.Op.String() + " " + FormatExpr(n.Right) + ")"
	}
	return "?"
}

// Eval evaluates the condition against a candidate row and session. The
// semantics mirror SQL three-valued logic collapsed to accept/reject: any
// comparison touching NULL rejects, except explicit IS NULL checks.
func Eval(e Expr, row map[string]any, sess Session) (bool, error) {
	switch n := e.(type) {
	case *BinaryExpr:
		switch n.Op {
		case TokenAnd:
			left, err := Eval(n.Left, row, sess)
			if err != nil || !left {
				return false, err
			}
			return Eval(n.Right, row, sess)
		case TokenOr:
			left, err := Eval(n.Left, row, sess)
			if err != nil {
				return false, err
			}
			if left {
				return true, nil
			}
			return Eval(n.Right, row, sess)
		default:
			return evalComparison(n, row, sess)
		}
	case *NullCheck:
		val, err := evalValue(n.Operand, row, sess)
		if err != nil {
			return false, err
		}
		if n.Negated {
			return val != nil, nil
		}
		return val == nil, nil
	}
	return false, fmt.Errorf("expression is not boolean: %s", FormatExpr(e))
}

func evalComparison(n *BinaryExpr, row map[string]any, sess Session) (bool, error) {
	left, err := evalValue(n.Left, row, sess)
	if err != nil {
		return false, err
	}
	right, err := evalValue(n.Right, row, sess)
	if err != nil {
		return false, err
	}
	// NULL compares as unknown, which rejects.
	if left == nil || right == nil {
		return false, nil
	}

	cmp, comparable := compareValues(left, right)
	switch n.Op {
	case TokenEq:
		return comparable && cmp == 0, nil
	case TokenNe:
		if !comparable {
			return true, nil
		}
		return cmp != 0, nil
	case TokenLt:
		return comparable && cmp < 0, nil
	case TokenLe:
		return comparable && cmp <= 0, nil
	case TokenGt:
		return comparable && cmp > 0, nil
	case TokenGe:
		return comparable && cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %s", n.Op)
}

func evalValue(e Expr, row map[string]any, sess Session) (any, error) {
	switch n := e.(type) {
	case *ColumnRef:
		val, ok := row[n.Name]
		if !ok {
			return nil, fmt.Errorf("row has no column %q", n.Name)
		}
		return val, nil
	case *VarRef:
		switch n.Name {
		case VarUserID:
			if sess.UserID == "" {
				return nil, nil
			}
			return sess.UserID, nil
		case VarOrganizationID:
			if sess.OrganizationID == "" {
				return nil, nil
			}
			return sess.OrganizationID, nil
		case VarRoles:
			if sess.Role == "" {
				return nil, nil
			}
			return sess.Role, nil
		}
		return nil, fmt.Errorf("unknown variable {%s}", n.Name)
	case *Literal:
		switch n.Type {
		case LiteralString:
			return n.String, nil
		case LiteralNumber:
			return n.Number, nil
		case LiteralBool:
			return n.Bool, nil
		case LiteralNull:
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expression is not a value: %s", FormatExpr(e))
}

// compareValues compares two non-nil values, returning (-1|0|1, true) when
// they are comparable and (0, false) otherwise. Numeric types compare
// numerically across int/float representations; strings and timestamps
// compare by order; booleans only support equality (false < true ordering is
// accepted for completeness, matching Postgres).
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}

	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}

	if as, aok := toString(a); aok {
		if bs, bok := toString(b); bok {
			return strings.Compare(as, bs), true
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case ab == bb:
				return 0, true
			case bb: // false < true
				return -1, true
			}
			return 1, true
		}
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}
