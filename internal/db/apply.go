package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ApplyStatements executes DDL statements in order inside one transaction.
// Used at startup and on schema reload to create declared tables and to
// install row-level security policies; every statement is expected to be
// idempotent.
func ApplyStatements(ctx context.Context, pool *sql.DB, stmts []string) error {
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ddl transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl %q: %w", firstLine(stmt), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ddl transaction: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
