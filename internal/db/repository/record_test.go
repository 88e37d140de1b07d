package repository

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basekit/internal/domain"
)

func newMockRepo(t *testing.T) (*RecordRepo, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return NewRecordRepo(pool), mock
}

func expectSessionVars(mock sqlmock.Sqlmock, actor domain.Actor) {
	mock.ExpectExec(`SELECT set_config`).
		WithArgs(
			"app.user_id", actor.UserID,
			"app.organization_id", actor.OrganizationID,
			"app.role", actor.Role,
		).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestRecordRepo_InTx_SetsSessionVarsAndCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Actor{UserID: "u1", Role: "editor", OrganizationID: "org-1", Authenticated: true}

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectCommit()

	err := repo.InTx(t.Context(), actor, func(*sql.Tx) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_InTx_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Anonymous()

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectRollback()

	err := repo.InTx(t.Context(), actor, func(*sql.Tx) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Get(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Actor{UserID: "u1", Authenticated: true}

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectQuery(`SELECT \* FROM "articles" WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("a1", []byte("Hello")))
	mock.ExpectCommit()

	var row domain.Row
	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		var err error
		row, err = repo.Get(t.Context(), tx, "articles", "a1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", row["id"])
	// Byte slices are surfaced as strings.
	assert.Equal(t, "Hello", row["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Get_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Anonymous()

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectQuery(`SELECT \* FROM "articles" WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))
	mock.ExpectRollback()

	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		_, err := repo.Get(t.Context(), tx, "articles", "missing")
		return err
	})
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Insert_ColumnsSortedDeterministically(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Actor{UserID: "u1", Authenticated: true}

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectQuery(`INSERT INTO "articles" \("author_id", "id", "title"\) VALUES \(\$1, \$2, \$3\) RETURNING \*`).
		WithArgs("u1", "a1", "Hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).AddRow("a1", "Hello", "u1"))
	mock.ExpectCommit()

	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		row, err := repo.Insert(t.Context(), tx, "articles", domain.Row{
			"title":     "Hello",
			"id":        "a1",
			"author_id": "u1",
		})
		if err != nil {
			return err
		}
		assert.Equal(t, "a1", row["id"])
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Update(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Actor{UserID: "u1", Authenticated: true}

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectQuery(`UPDATE "articles" SET "title" = \$1, updated_at = now\(\) WHERE id = \$2 RETURNING \*`).
		WithArgs("Updated", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("a1", "Updated"))
	mock.ExpectCommit()

	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		row, err := repo.Update(t.Context(), tx, "articles", "a1", domain.Row{"title": "Updated"})
		if err != nil {
			return err
		}
		assert.Equal(t, "Updated", row["title"])
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Delete_ZeroRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Actor{UserID: "u1", Authenticated: true}

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectExec(`DELETE FROM "articles" WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		return repo.Delete(t.Context(), tx, "articles", "ghost")
	})
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	actor := domain.Anonymous()

	mock.ExpectBegin()
	expectSessionVars(mock, actor)
	mock.ExpectQuery(`SELECT \* FROM "articles" ORDER BY created_at DESC, id LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow("a2", "Second").
			AddRow("a1", "First"))
	mock.ExpectCommit()

	err := repo.InTx(t.Context(), actor, func(tx *sql.Tx) error {
		rows, err := repo.List(t.Context(), tx, "articles", 50, 0)
		if err != nil {
			return err
		}
		require.Len(t, rows, 2)
		assert.Equal(t, "a2", rows[0]["id"])
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
