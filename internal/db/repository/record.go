package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"basekit/internal/db"
	"basekit/internal/domain"
)

// RecordRepo performs CRUD on declared application tables. Table and column
// names are validated at schema load, never taken from requests, so they can
// be interpolated; every value travels as a bind parameter.
//
// All queries run inside a transaction carrying the actor's session
// variables, so the database's row-level security policies see the same
// identity the request-time evaluator saw.
type RecordRepo struct {
	pool *sql.DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(pool *sql.DB) *RecordRepo {
	return &RecordRepo{pool: pool}
}

// InTx runs fn inside a transaction with the actor's identity bound to the
// connection. The transaction commits when fn returns nil and rolls back
// otherwise.
func (r *RecordRepo) InTx(ctx context.Context, actor domain.Actor, fn func(tx *sql.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := db.SetSessionVars(ctx, tx, actor); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns rows from a declared table, newest first.
func (r *RecordRepo) List(ctx context.Context, tx *sql.Tx, table string, limit, offset int) ([]domain.Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, quoteIdent(table))
	rows, err := tx.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows)
}

// Get returns one row by ID, or a NotFoundError.
func (r *RecordRepo) Get(ctx context.Context, tx *sql.Tx, table, id string) (domain.Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1`, quoteIdent(table))
	rows, err := tx.QueryContext(ctx, query, id)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	records, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound("record %q not found", id)
	}
	return records[0], nil
}

// Insert writes a new row and returns it as stored.
func (r *RecordRepo) Insert(ctx context.Context, tx *sql.Tx, table string, row domain.Row) (domain.Row, error) {
	cols := sortedKeys(row)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	records, err := scanRows(rows)
	if err != nil {
		return nil, mapDBError(err)
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound("record not visible after insert")
	}
	return records[0], nil
}

// Update applies the given fields to one row and returns the updated row.
// A zero-row result means the record does not exist or is not visible.
func (r *RecordRepo) Update(ctx context.Context, tx *sql.Tx, table, id string, fields domain.Row) (domain.Row, error) {
	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(col), i+1))
		args = append(args, fields[col])
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING *`,
		quoteIdent(table), strings.Join(sets, ", "), len(args))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	records, err := scanRows(rows)
	if err != nil {
		return nil, mapDBError(err)
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound("record %q not found", id)
	}
	return records[0], nil
}

// Delete removes one row by ID. Deleting a missing or invisible row is a
// NotFoundError.
func (r *RecordRepo) Delete(ctx context.Context, tx *sql.Tx, table, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, quoteIdent(table))
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("record %q not found", id)
	}
	return nil
}

func sortedKeys(row domain.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
