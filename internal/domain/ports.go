package domain

import "context"

// UserRepository provides access to the system users table.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	SetRole(ctx context.Context, id, role string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// AuditRepository appends entries to the audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
}
