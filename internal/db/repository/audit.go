package repository

import (
	"context"
	"database/sql"

	"basekit/internal/domain"
)

var _ domain.AuditRepository = (*AuditRepo)(nil)

// AuditRepo appends to the audit trail.
type AuditRepo struct {
	pool *sql.DB
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool *sql.DB) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Insert appends one audit entry.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	const query = `INSERT INTO audit_log (actor_id, action, table_name, record_id, detail)
		VALUES ($1, $2, $3, $4, $5)`
	detail := e.Outcome
	if detail == "" {
		detail = "allow"
	}
	_, err := r.pool.ExecContext(ctx, query,
		e.ActorID, e.Operation, e.Table, e.RecordID, detailJSON(detail))
	return mapDBError(err)
}

func detailJSON(outcome string) string {
	// Outcome values come from the evaluator, not user input.
	return `{"outcome": "` + outcome + `"}`
}
