package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basekit/internal/db/repository"
	"basekit/internal/domain"
	"basekit/internal/permission"
)

type auditStub struct {
	entries []*domain.AuditEntry
	err     error
}

func (a *auditStub) Insert(_ context.Context, e *domain.AuditEntry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, e)
	return nil
}

func mustCondition(t *testing.T, input string) *permission.Rule {
	t.Helper()
	expr, err := permission.ParseCondition(input)
	require.NoError(t, err)
	return permission.Custom(expr)
}

// testSnapshot compiles a fixed two-table schema: public articles with an
// ownership update rule and a read-only slug, and organization-scoped
// projects.
func testSnapshot(t *testing.T) *permission.Snapshot {
	t.Helper()
	snap, err := permission.Compile([]permission.TableConfig{
		{
			Name: "articles",
			Rules: map[domain.Operation]*permission.Rule{
				domain.OpRead:   permission.AllowAll(),
				domain.OpCreate: permission.Roles("editor", "admin"),
				domain.OpUpdate: mustCondition(t, "{userId} = author_id"),
				domain.OpDelete: permission.Roles("admin"),
			},
			Fields: []permission.FieldRule{
				{Field: "slug", Write: permission.DenyAll()},
			},
			Columns: map[string]string{
				"title":     "text",
				"slug":      "text",
				"author_id": "text",
			},
		},
		{
			Name:               "projects",
			OrganizationScoped: true,
			Rules: map[domain.Operation]*permission.Rule{
				domain.OpRead:   permission.Authenticated(),
				domain.OpCreate: permission.Authenticated(),
				domain.OpUpdate: permission.Authenticated(),
			},
			Columns: map[string]string{
				"title":           "text",
				"organization_id": "text",
			},
		},
	})
	require.NoError(t, err)
	return snap
}

func newRecordService(t *testing.T) (*RecordService, sqlmock.Sqlmock, *auditStub) {
	t.Helper()
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	audit := &auditStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewRecordService(
		permission.NewHolder(testSnapshot(t)),
		repository.NewRecordRepo(pool),
		audit,
		logger,
	)
	return svc, mock, audit
}

func expectTxOpen(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestRecordService_UnknownTableIsNotFound(t *testing.T) {
	svc, _, _ := newRecordService(t)

	_, err := svc.Get(t.Context(), domain.Anonymous(), "missing_table", "x")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRecordService_Get_PublicTableAllowsAnonymous(t *testing.T) {
	svc, mock, _ := newRecordService(t)

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug", "author_id"}).
			AddRow("a1", "Hello", "hello", "u2"))
	mock.ExpectCommit()

	row, err := svc.Get(t.Context(), domain.Anonymous(), "articles", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", row["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Create_AnonymousGets401BeforeAnySQL(t *testing.T) {
	svc, mock, _ := newRecordService(t)

	_, err := svc.Create(t.Context(), domain.Anonymous(), "articles", domain.Row{"title": "X"})
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Create_WrongRoleGets403(t *testing.T) {
	svc, _, _ := newRecordService(t)

	actor := domain.Actor{UserID: "u1", Role: "viewer", Authenticated: true}
	_, err := svc.Create(t.Context(), actor, "articles", domain.Row{"title": "X"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestRecordService_Create_EditorSucceedsAndAudits(t *testing.T) {
	svc, mock, audit := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`INSERT INTO "articles" \("id", "title"\) VALUES \(\$1, \$2\) RETURNING \*`).
		WithArgs(sqlmock.AnyArg(), "Hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("generated", "Hello"))
	mock.ExpectCommit()

	row, err := svc.Create(t.Context(), actor, "articles", domain.Row{"title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", row["title"])

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "create", audit.entries[0].Operation)
	assert.Equal(t, "articles", audit.entries[0].Table)
	assert.Equal(t, "u1", audit.entries[0].ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Create_ServerManagedFieldIsForbidden(t *testing.T) {
	svc, _, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	// Server-managed columns carry an implicit always-deny write rule, so an
	// otherwise authorized writer gets a field-permission denial, not a 400.
	for _, field := range []string{"id", "created_at", "updated_at"} {
		_, err := svc.Create(t.Context(), actor, "articles", domain.Row{"title": "X", field: "custom"})
		var denied *domain.AccessDeniedError
		require.ErrorAs(t, err, &denied, field)
		assert.Contains(t, denied.Message, `"`+field+`"`)
	}
}

func TestRecordService_Create_UnknownFieldIsInvalid(t *testing.T) {
	svc, _, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	_, err := svc.Create(t.Context(), actor, "articles", domain.Row{"bogus": 1})
	var invalid *domain.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Message, `"bogus"`)
}

func TestRecordService_Create_TableDenialPrecedesFieldDenial(t *testing.T) {
	svc, _, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "viewer", Authenticated: true}

	// A role-denied actor submitting a server-managed column is told about
	// the table-level denial, never the field.
	_, err := svc.Create(t.Context(), actor, "articles", domain.Row{"title": "X", "id": "custom"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Contains(t, denied.Message, `role "viewer"`)
}

func TestRecordService_Create_ReadOnlyFieldIsRejected(t *testing.T) {
	svc, _, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	_, err := svc.Create(t.Context(), actor, "articles", domain.Row{"title": "X", "slug": "x"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Contains(t, denied.Message, `"slug"`)
}

func TestRecordService_Create_ScopedTableRequiresOrganization(t *testing.T) {
	svc, _, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "member", Authenticated: true}

	_, err := svc.Create(t.Context(), actor, "projects", domain.Row{"title": "P"})
	var invalid *domain.ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestRecordService_Create_ScopedTableStampsActorOrganization(t *testing.T) {
	svc, mock, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "member", OrganizationID: "org-1", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`INSERT INTO "projects" \("id", "organization_id", "title"\)`).
		WithArgs(sqlmock.AnyArg(), "org-1", "P").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "title"}).
			AddRow("p1", "org-1", "P"))
	mock.ExpectCommit()

	_, err := svc.Create(t.Context(), actor, "projects", domain.Row{"title": "P"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Update_NonAuthorOfVisibleRowGets403(t *testing.T) {
	svc, mock, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "Hello", "someone-else"))
	mock.ExpectRollback()

	_, err := svc.Update(t.Context(), actor, "articles", "a1", domain.Row{"title": "Mine now"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Update_AuthorSucceeds(t *testing.T) {
	svc, mock, audit := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "Hello", "u1"))
	mock.ExpectQuery(`UPDATE "articles" SET "title" = \$1`).
		WithArgs("Updated", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "Updated", "u1"))
	mock.ExpectCommit()

	row, err := svc.Update(t.Context(), actor, "articles", "a1", domain.Row{"title": "Updated"})
	require.NoError(t, err)
	assert.Equal(t, "Updated", row["title"])
	require.Len(t, audit.entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Update_CrossOrganizationRowLooksMissing(t *testing.T) {
	svc, mock, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "member", OrganizationID: "org-2", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "projects"`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "organization_id"}).
			AddRow("p1", "Secret", "org-1"))
	mock.ExpectRollback()

	_, err := svc.Update(t.Context(), actor, "projects", "p1", domain.Row{"title": "Taken"})
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Update_AnonymousGets401BeforeAnySQL(t *testing.T) {
	svc, mock, _ := newRecordService(t)

	// Even though RLS would hide the row anyway, an anonymous actor on an
	// authenticated-only table must hit the table gate, not a 404.
	_, err := svc.Update(t.Context(), domain.Anonymous(), "projects", "p1", domain.Row{"title": "X"})
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_BatchUpdate_AnonymousGets401BeforeAnySQL(t *testing.T) {
	svc, mock, _ := newRecordService(t)

	_, err := svc.BatchUpdate(t.Context(), domain.Anonymous(), "projects", []domain.RecordUpdate{
		{ID: "p1", Fields: domain.Row{"title": "X"}},
	}, false)
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_Delete_WrongRoleGets403BeforeAnySQL(t *testing.T) {
	svc, mock, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	err := svc.Delete(t.Context(), actor, "articles", "a1")
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	// The role gate rejects before any transaction is opened.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_BatchUpdate_AllOrNothing(t *testing.T) {
	svc, mock, audit := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	expectTxOpen(mock)
	// First record belongs to the actor and updates cleanly.
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "One", "u1"))
	mock.ExpectQuery(`UPDATE "articles" SET "title" = \$1`).
		WithArgs("One!", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "One!", "u1"))
	// Second record belongs to someone else: the whole batch rolls back.
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a2", "Two", "other"))
	mock.ExpectRollback()

	_, err := svc.BatchUpdate(t.Context(), actor, "articles", []domain.RecordUpdate{
		{ID: "a1", Fields: domain.Row{"title": "One!"}},
		{ID: "a2", Fields: domain.Row{"title": "Two!"}},
	}, false)
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Empty(t, audit.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_BatchUpdate_ReturnsRecordsWhenAsked(t *testing.T) {
	svc, mock, _ := newRecordService(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", Authenticated: true}

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "articles"`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "One", "u1"))
	mock.ExpectQuery(`UPDATE "articles" SET "title" = \$1`).
		WithArgs("One!", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).
			AddRow("a1", "One!", "u1"))
	mock.ExpectCommit()

	result, err := svc.BatchUpdate(t.Context(), actor, "articles", []domain.RecordUpdate{
		{ID: "a1", Fields: domain.Row{"title": "One!"}},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "One!", result.Records[0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_List_FiltersAndCaps(t *testing.T) {
	svc, mock, _ := newRecordService(t)

	expectTxOpen(mock)
	mock.ExpectQuery(`SELECT \* FROM "articles" ORDER BY created_at DESC`).
		WithArgs(maxListLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow("a1", "One").
			AddRow("a2", "Two"))
	mock.ExpectCommit()

	rows, err := svc.List(t.Context(), domain.Anonymous(), "articles", 10_000, -5)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
