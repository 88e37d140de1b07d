package domain

import "time"

// User is a system identity row. Credential mechanics (hashing, sessions)
// belong to the surrounding auth layer; only the fields the admin API and
// the authorization engine need are modeled here.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	Banned       bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Organization is a tenant boundary.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrganizationID string
	UserID         string
	Role           string
	CreatedAt      time.Time
}

// AuditEntry records one mutating operation for the audit trail.
type AuditEntry struct {
	ID        string
	ActorID   string
	Table     string
	Operation string
	RecordID  string
	Outcome   string // "allow" or the deny reason
	CreatedAt time.Time
}
