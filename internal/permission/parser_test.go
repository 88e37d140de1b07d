package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, input string) Expr {
	t.Helper()
	expr, err := ParseCondition(input)
	require.NoError(t, err, "parse %q", input)
	return expr
}

func TestParseCondition_Comparison(t *testing.T) {
	expr := mustParse(t, "{userId} = author_id")

	bin, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenEq, bin.Op)

	v, ok := bin.Left.(*VarRef)
	require.True(t, ok)
	assert.Equal(t, VarUserID, v.Name)

	col, ok := bin.Right.(*ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "author_id", col.Name)
}

func TestParseCondition_Precedence(t *testing.T) {
	// AND binds tighter than OR.
	expr := mustParse(t, "visibility = 'public' OR {userId} = author_id AND status != 'archived'")

	or, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, TokenOr, or.Op)

	and, ok := or.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenAnd, and.Op)
}

func TestParseCondition_Parentheses(t *testing.T) {
	expr := mustParse(t, "(visibility = 'public' OR visibility = 'internal') AND {organizationId} = organization_id")

	and, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, TokenAnd, and.Op)

	or, ok := and.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenOr, or.Op)
}

func TestParseCondition_NullChecks(t *testing.T) {
	expr := mustParse(t, "deleted_at IS NULL")
	nc, ok := expr.(*NullCheck)
	require.True(t, ok)
	assert.False(t, nc.Negated)

	expr = mustParse(t, "published_at IS NOT NULL")
	nc, ok = expr.(*NullCheck)
	require.True(t, ok)
	assert.True(t, nc.Negated)
}

func TestParseCondition_Literals(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"string with escape", "title = 'it''s here'"},
		{"number", "score >= 4.5"},
		{"integer", "age > 18"},
		{"case-insensitive keywords", "a = 1 and b = 2 or c is null"},
		{"not-equal variants", "status <> 'done' AND status != 'open'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.input)
			assert.NoError(t, err)
		})
	}
}

func TestParseCondition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"unknown variable", "{sessionId} = author_id", "unknown variable"},
		{"unterminated string", "title = 'oops", "unterminated string"},
		{"unterminated variable", "{userId = author_id", "unterminated variable"},
		{"dangling operator", "author_id =", "unexpected"},
		{"missing close paren", "(a = 1", "expected )"},
		{"bare column", "author_id", "expected comparison operator"},
		{"trailing garbage", "a = 1 b", "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEval_OwnershipCondition(t *testing.T) {
	expr := mustParse(t, "visibility = 'public' OR {userId} = author_id")
	sess := Session{UserID: "u1"}

	tests := []struct {
		name string
		row  map[string]any
		want bool
	}{
		{"public other-owned", map[string]any{"visibility": "public", "author_id": "u2"}, true},
		{"private own", map[string]any{"visibility": "private", "author_id": "u1"}, true},
		{"private other-owned", map[string]any{"visibility": "private", "author_id": "u2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(expr, tt.row, sess)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_NullSemantics(t *testing.T) {
	// NULL comparisons reject; IS NULL sees them.
	expr := mustParse(t, "deleted_at IS NULL")
	got, err := Eval(expr, map[string]any{"deleted_at": nil}, Session{})
	require.NoError(t, err)
	assert.True(t, got)

	expr = mustParse(t, "{userId} = author_id")
	// Empty session user id behaves as NULL: comparison rejects.
	got, err = Eval(expr, map[string]any{"author_id": "u1"}, Session{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEval_NumericCoercion(t *testing.T) {
	expr := mustParse(t, "score >= 4.5")

	got, err := Eval(expr, map[string]any{"score": int64(5)}, Session{})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval(expr, map[string]any{"score": 4.0}, Session{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEval_UnknownColumn(t *testing.T) {
	expr := mustParse(t, "missing_col = 'x'")
	_, err := Eval(expr, map[string]any{"other": "y"}, Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_col")
}

func TestSQL_Emission(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"ownership",
			"{userId} = author_id",
			`(nullif(current_setting('app.user_id', true), '') = "author_id")`,
		},
		{
			"string literal escaping",
			"title = 'it''s'",
			`("title" = 'it''s')`,
		},
		{
			"null check",
			"deleted_at IS NULL",
			`("deleted_at" IS NULL)`,
		},
		{
			"numeric cast for variable",
			"{userId} > 10",
			`((nullif(current_setting('app.user_id', true), ''))::numeric > 10)`,
		},
		{
			"boolean combination",
			"visibility = 'public' OR {userId} = author_id",
			`(("visibility" = 'public') OR (nullif(current_setting('app.user_id', true), '') = "author_id"))`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQL(mustParse(t, tt.input)))
		})
	}
}

// The in-process evaluator and the SQL emitter must agree on the same rule
// tree: this walks a three-row example through the evaluator, while
// TestSQL_Emission pins the SQL that RLS enforces for the identical tree.
func TestDualBackend_SameTree(t *testing.T) {
	expr := mustParse(t, "visibility = 'public' OR {userId} = author_id")

	assert.Equal(t,
		`(("visibility" = 'public') OR (nullif(current_setting('app.user_id', true), '') = "author_id"))`,
		SQL(expr))

	visible := 0
	rows := []map[string]any{
		{"visibility": "public", "author_id": "u2"},
		{"visibility": "private", "author_id": "u1"},
		{"visibility": "private", "author_id": "u2"},
	}
	for _, row := range rows {
		ok, err := Eval(expr, row, Session{UserID: "u1"})
		require.NoError(t, err)
		if ok {
			visible++
		}
	}
	assert.Equal(t, 2, visible)
}
