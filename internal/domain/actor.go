package domain

// Actor is the authenticated identity attached to a request. It is supplied
// by the session middleware and treated as an opaque, already-verified input
// by the authorization engine.
type Actor struct {
	UserID         string
	Role           string
	OrganizationID string // active organization, empty when none selected
	Authenticated  bool
}

// Anonymous returns an unauthenticated actor.
func Anonymous() Actor {
	return Actor{}
}

// Operation is one of the four CRUD operations a permission rule governs.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists all four operations in a stable order.
var Operations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// Valid reports whether op is one of the four known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}
