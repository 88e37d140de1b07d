package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basekit/internal/domain"
	"basekit/internal/permission"
)

func TestCompile_EndToEnd(t *testing.T) {
	s := &Schema{Tables: []TableResource{
		tableRes("articles", TableSpec{
			Columns: []ColumnDef{
				{Name: "title", Type: "text", Required: true},
				{Name: "author_id", Type: "text"},
				{Name: "slug", Type: "text"},
			},
			Permissions: PermissionSpec{
				Read:   allRule(),
				Create: &RuleSpec{Roles: []string{"editor", "admin"}},
				Update: &RuleSpec{Condition: "{userId} = author_id"},
			},
			Fields: []FieldPermissionSpec{
				{Field: "slug", ReadOnly: true},
			},
		}),
		tableRes("drafts", TableSpec{
			Columns: []ColumnDef{{Name: "title", Type: "text"}},
			Permissions: PermissionSpec{
				Inherit:  "articles",
				Override: &OverrideSpec{Read: &RuleSpec{Shorthand: "authenticated"}},
			},
		}),
	}}

	snap, err := Compile(s)
	require.NoError(t, err)

	articles, ok := snap.Table("articles")
	require.True(t, ok)
	assert.Equal(t, permission.KindAllowAll, articles.Rules[domain.OpRead].Kind)
	assert.Equal(t, []string{"admin", "editor"}, articles.Rules[domain.OpCreate].Roles)
	assert.Equal(t, permission.KindCustom, articles.Rules[domain.OpUpdate].Kind)
	assert.Equal(t, permission.KindDenyAll, articles.Rules[domain.OpDelete].Kind)

	slug, hasSlug := articles.Fields["slug"]
	require.True(t, hasSlug)
	require.NotNil(t, slug.Write)
	assert.Equal(t, permission.KindDenyAll, slug.Write.Kind)
	assert.Nil(t, slug.Read)

	drafts, ok := snap.Table("drafts")
	require.True(t, ok)
	assert.Equal(t, permission.KindAuthenticated, drafts.Rules[domain.OpRead].Kind)
	assert.Equal(t, []string{"admin", "editor"}, drafts.Rules[domain.OpCreate].Roles)
	// Fields never inherit.
	assert.Empty(t, drafts.Fields)
}

func TestCompile_ReportsValidationErrorsFirst(t *testing.T) {
	s := &Schema{Tables: []TableResource{tableRes("articles", TableSpec{
		Columns:     []ColumnDef{{Name: "body", Type: "varchar"}},
		Permissions: PermissionSpec{Read: &RuleSpec{Condition: "{userId} ="}},
	})}}

	_, err := Compile(s)
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, `unknown type "varchar"`)
}

func TestCompile_ConditionParseError(t *testing.T) {
	s := &Schema{Tables: []TableResource{tableRes("articles", TableSpec{
		Columns:     []ColumnDef{{Name: "author_id", Type: "text"}},
		Permissions: PermissionSpec{Read: &RuleSpec{Condition: "{badVar} = author_id"}},
	})}}

	_, err := Compile(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tables/articles.yaml")
	assert.Contains(t, err.Error(), "read rule")
}

func TestCompile_UnknownColumnInCondition(t *testing.T) {
	s := &Schema{Tables: []TableResource{tableRes("articles", TableSpec{
		Columns:     []ColumnDef{{Name: "title", Type: "text"}},
		Permissions: PermissionSpec{Update: &RuleSpec{Condition: "{userId} = author_id"}},
	})}}

	_, err := Compile(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "author_id")
}

func TestCompile_AndRule(t *testing.T) {
	s := &Schema{Tables: []TableResource{tableRes("reports", TableSpec{
		Columns: []ColumnDef{{Name: "owner_id", Type: "text"}},
		Permissions: PermissionSpec{
			Delete: &RuleSpec{And: []RuleSpec{
				{Roles: []string{"manager"}},
				{Condition: "{userId} = owner_id"},
			}},
		},
	})}}

	snap, err := Compile(s)
	require.NoError(t, err)

	reports, ok := snap.Table("reports")
	require.True(t, ok)
	rule := reports.Rules[domain.OpDelete]
	require.Equal(t, permission.KindAnd, rule.Kind)
	require.Len(t, rule.All, 2)
	assert.Equal(t, permission.KindRoles, rule.All[0].Kind)
	assert.Equal(t, permission.KindCustom, rule.All[1].Kind)
}

func TestTableDDL(t *testing.T) {
	table := tableRes("projects", TableSpec{
		OrganizationScoped: true,
		Columns: []ColumnDef{
			{Name: "title", Type: "text", Required: true},
			{Name: "budget", Type: "number"},
			{Name: "organization_id", Type: "text"},
		},
	})

	ddl := TableDDL(&table)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "projects"`)
	assert.Contains(t, ddl, `"id" text PRIMARY KEY`)
	assert.Contains(t, ddl, `"title" text NOT NULL`)
	assert.Contains(t, ddl, `"budget" double precision`)
	assert.Contains(t, ddl, `"organization_id" text NOT NULL`)
	assert.Contains(t, ddl, `"created_at" timestamptz NOT NULL DEFAULT now()`)
	// organization_id renders once, via the tenant branch.
	assert.Equal(t, 1, strings.Count(ddl, `"organization_id"`))
}
