// Package repository implements data access for declared application
// tables and the platform's own identity and audit tables.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"basekit/internal/domain"
)

// mapDBError converts driver-level errors into domain errors.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("resource not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return domain.ErrConflict("resource already exists")
		case "23502": // not_null_violation
			return domain.ErrValidation("column %q must not be null", pgErr.ColumnName)
		case "42501": // insufficient_privilege (row-level security)
			return domain.ErrAccessDenied("operation not permitted")
		}
	}
	return err
}

// quoteIdent double-quotes a SQL identifier. Names reaching here already
// passed schema validation, so quoting guards against reserved words, not
// injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// scanRows reads every result row into a generic map keyed by column name.
// Byte slices become strings so JSON encoding produces text, not base64.
func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
