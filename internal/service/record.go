// Package service implements the application's use cases on top of the
// permission engine and the repositories.
package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"basekit/internal/db/repository"
	"basekit/internal/domain"
	"basekit/internal/permission"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RecordService performs CRUD on declared application tables. Every
// operation is checked twice: here, against the compiled permission
// snapshot, and in the database, by the row-level security policies
// compiled from the same rules.
type RecordService struct {
	snapshots *permission.Holder
	records   *repository.RecordRepo
	audit     domain.AuditRepository
	logger    *slog.Logger
}

// NewRecordService creates a new RecordService.
func NewRecordService(snapshots *permission.Holder, records *repository.RecordRepo, audit domain.AuditRepository, logger *slog.Logger) *RecordService {
	return &RecordService{
		snapshots: snapshots,
		records:   records,
		audit:     audit,
		logger:    logger.With("component", "record_service"),
	}
}

// table resolves a table from the current snapshot. Unknown tables are
// NotFound so probing for undeclared tables reveals nothing.
func (s *RecordService) table(name string) (*permission.TableSet, error) {
	set, ok := s.snapshots.Current().Table(name)
	if !ok {
		return nil, domain.ErrNotFound("table %q not found", name)
	}
	return set, nil
}

// List returns the rows of a table visible to the actor, field-filtered.
func (s *RecordService) List(ctx context.Context, actor domain.Actor, tableName string, limit, offset int) ([]domain.Row, error) {
	set, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	if err := set.Authorize(actor, domain.OpRead, nil).Err(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	out := []domain.Row{}
	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		rows, err := s.records.List(ctx, tx, tableName, limit, offset)
		if err != nil {
			return err
		}
		for _, row := range rows {
			// RLS already filtered invisible rows; re-checking here keeps
			// the two layers honest with each other.
			if !set.Authorize(actor, domain.OpRead, row).Allowed {
				continue
			}
			out = append(out, set.FilterReadableFields(actor, row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one row by ID, field-filtered for the actor.
func (s *RecordService) Get(ctx context.Context, actor domain.Actor, tableName, id string) (domain.Row, error) {
	set, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	if err := set.Authorize(actor, domain.OpRead, nil).Err(); err != nil {
		return nil, err
	}

	var out domain.Row
	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		row, err := s.records.Get(ctx, tx, tableName, id)
		if err != nil {
			return err
		}
		if err := set.Authorize(actor, domain.OpRead, row).Err(); err != nil {
			return err
		}
		out = set.FilterReadableFields(actor, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a new record. The organization_id of an organization-scoped
// table is always taken from the actor, never from the payload, and an actor
// without an active organization cannot create into a scoped table.
func (s *RecordService) Create(ctx context.Context, actor domain.Actor, tableName string, fields domain.Row) (domain.Row, error) {
	set, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	if err := set.Authorize(actor, domain.OpCreate, nil).Err(); err != nil {
		return nil, err
	}
	if err := validateColumns(set, fields); err != nil {
		return nil, err
	}
	if err := set.AssertWritableFields(actor, fields, nil); err != nil {
		return nil, err
	}

	row := fields.Clone()
	row["id"] = uuid.NewString()
	if set.OrganizationScoped {
		if actor.OrganizationID == "" {
			return nil, domain.ErrValidation("an active organization is required to create into %q", tableName)
		}
		row["organization_id"] = actor.OrganizationID
	}

	if err := set.Authorize(actor, domain.OpCreate, row).Err(); err != nil {
		return nil, err
	}

	var out domain.Row
	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		stored, err := s.records.Insert(ctx, tx, tableName, row)
		if err != nil {
			return err
		}
		out = set.FilterReadableFields(actor, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLog(ctx, actor, tableName, domain.OpCreate, row["id"].(string))
	return out, nil
}

// Update applies a partial update to one record.
func (s *RecordService) Update(ctx context.Context, actor domain.Actor, tableName, id string, fields domain.Row) (domain.Row, error) {
	set, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	// Table-level gate first: a role or authentication denial rejects before
	// any SQL runs; row conditions are decided inside the transaction.
	if err := set.Authorize(actor, domain.OpUpdate, nil).Err(); err != nil {
		return nil, err
	}
	if err := validateColumns(set, fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrValidation("update requires at least one field")
	}

	var out domain.Row
	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		existing, err := s.records.Get(ctx, tx, tableName, id)
		if err != nil {
			return err
		}
		if err := set.Authorize(actor, domain.OpUpdate, existing).Err(); err != nil {
			return err
		}
		if err := set.AssertWritableFields(actor, fields, existing); err != nil {
			return err
		}
		updated, err := s.records.Update(ctx, tx, tableName, id, fields)
		if err != nil {
			return err
		}
		out = set.FilterReadableFields(actor, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLog(ctx, actor, tableName, domain.OpUpdate, id)
	return out, nil
}

// Delete removes one record.
func (s *RecordService) Delete(ctx context.Context, actor domain.Actor, tableName, id string) error {
	set, err := s.table(tableName)
	if err != nil {
		return err
	}
	if err := set.Authorize(actor, domain.OpDelete, nil).Err(); err != nil {
		return err
	}

	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		existing, err := s.records.Get(ctx, tx, tableName, id)
		if err != nil {
			return err
		}
		if err := set.Authorize(actor, domain.OpDelete, existing).Err(); err != nil {
			return err
		}
		return s.records.Delete(ctx, tx, tableName, id)
	})
	if err != nil {
		return err
	}
	s.auditLog(ctx, actor, tableName, domain.OpDelete, id)
	return nil
}

// BatchUpdate applies several updates in one transaction. The batch is
// all-or-nothing: the first denial or missing record rolls back every
// change already applied.
func (s *RecordService) BatchUpdate(ctx context.Context, actor domain.Actor, tableName string, updates []domain.RecordUpdate, returnRecords bool) (*domain.BatchResult, error) {
	set, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	if err := set.Authorize(actor, domain.OpUpdate, nil).Err(); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, domain.ErrValidation("batch update requires at least one record")
	}
	for _, u := range updates {
		if u.ID == "" {
			return nil, domain.ErrValidation("batch update entries require an id")
		}
		if err := validateColumns(set, u.Fields); err != nil {
			return nil, err
		}
	}

	result := &domain.BatchResult{}
	err = s.records.InTx(ctx, actor, func(tx *sql.Tx) error {
		for _, u := range updates {
			existing, err := s.records.Get(ctx, tx, tableName, u.ID)
			if err != nil {
				return err
			}
			if err := set.Authorize(actor, domain.OpUpdate, existing).Err(); err != nil {
				return err
			}
			if err := set.AssertWritableFields(actor, u.Fields, existing); err != nil {
				return err
			}
			updated, err := s.records.Update(ctx, tx, tableName, u.ID, u.Fields)
			if err != nil {
				return err
			}
			result.Updated++
			if returnRecords {
				result.Records = append(result.Records, set.FilterReadableFields(actor, updated))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, u := range updates {
		s.auditLog(ctx, actor, tableName, domain.OpUpdate, u.ID)
	}
	return result, nil
}

// auditLog records a committed mutation. Audit failures are logged, never
// surfaced: the mutation already happened.
func (s *RecordService) auditLog(ctx context.Context, actor domain.Actor, tableName string, op domain.Operation, recordID string) {
	entry := &domain.AuditEntry{
		ActorID:   actor.UserID,
		Table:     tableName,
		Operation: string(op),
		RecordID:  recordID,
		Outcome:   "allow",
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed", "table", tableName, "op", op, "error", err)
	}
}

// validateColumns rejects payload keys that are not declared columns.
// System columns pass through: their always-deny write rules live in the
// field assert, so a table-level denial keeps precedence over them.
func validateColumns(set *permission.TableSet, fields domain.Row) error {
	for name := range fields {
		switch name {
		case "id", "created_at", "updated_at", "organization_id":
			continue
		}
		if _, ok := set.Columns[name]; !ok {
			return domain.ErrValidation("unknown field %q", name)
		}
	}
	return nil
}
