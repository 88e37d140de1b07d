package permission

import (
	"fmt"

	"basekit/internal/domain"
)

// DenyCode classifies why an operation was denied.
type DenyCode int

const (
	// DenyNone means the operation was allowed.
	DenyNone DenyCode = iota
	// DenyUnauthorized: the actor is not signed in and the rule is stricter
	// than allow-all. Maps to 401.
	DenyUnauthorized
	// DenyForbidden: the actor is signed in but the rule denies the
	// operation, or a visible row fails the operation's condition. Maps to 403.
	DenyForbidden
	// DenyNotFound: the row is not visible to the actor due to organization
	// or ownership filtering. Maps to 404 so cross-tenant records appear to
	// not exist.
	DenyNotFound
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Code    DenyCode
	Reason  string
}

func allowDecision() Decision {
	return Decision{Allowed: true}
}

func deny(code DenyCode, format string, args ...any) Decision {
	return Decision{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Err converts a deny decision to the matching domain error. Calling Err on
// an allowed decision returns nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Code {
	case DenyUnauthorized:
		return domain.ErrUnauthenticated("%s", d.Reason)
	case DenyNotFound:
		return domain.ErrNotFound("%s", d.Reason)
	default:
		return domain.ErrAccessDenied("%s", d.Reason)
	}
}

// session builds the condition-evaluation session for an actor.
func sessionFor(actor domain.Actor) Session {
	return Session{
		UserID:         actor.UserID,
		OrganizationID: actor.OrganizationID,
		Role:           actor.Role,
	}
}

// Authorize evaluates the resolved rule for (table, op) against the actor.
//
// The table-level gate runs first: a role or authentication denial is final
// and no field- or row-level concern is consulted. When the rule needs row
// data and none is supplied (list reads), the gate allows and row filtering
// is left to the RLS policies. When a candidate row is supplied (single-
// record operations), row-level conditions are decided here: an invisible
// row — cross-organization or failing the read condition — denies with
// NotFound; a visible row failing the operation's own condition denies with
// Forbidden.
func (t *TableSet) Authorize(actor domain.Actor, op domain.Operation, row domain.Row) Decision {
	rule := t.Rules[op]
	if rule == nil {
		rule = DenyAll()
	}

	if d := t.gate(actor, op, rule); !d.Allowed {
		return d
	}

	if row == nil {
		return allowDecision()
	}
	return t.authorizeRow(actor, op, rule, row)
}

// gate applies the row-independent part of the rule: authentication and role
// membership.
func (t *TableSet) gate(actor domain.Actor, op domain.Operation, rule *Rule) Decision {
	switch rule.Kind {
	case KindAllowAll:
		return allowDecision()
	case KindDenyAll:
		if !actor.Authenticated {
			return deny(DenyUnauthorized, "authentication required for %s on %q", op, t.Name)
		}
		return deny(DenyForbidden, "operation %s is not permitted on %q", op, t.Name)
	case KindAuthenticated:
		if !actor.Authenticated {
			return deny(DenyUnauthorized, "authentication required for %s on %q", op, t.Name)
		}
		return allowDecision()
	case KindRoles:
		if !actor.Authenticated {
			return deny(DenyUnauthorized, "authentication required for %s on %q", op, t.Name)
		}
		if !rule.HasRole(actor.Role) {
			return deny(DenyForbidden, "role %q may not %s on %q", actor.Role, op, t.Name)
		}
		return allowDecision()
	case KindCustom:
		// Custom conditions are stricter than allow-all, so anonymous
		// actors are turned away before any evaluation.
		if !actor.Authenticated {
			return deny(DenyUnauthorized, "authentication required for %s on %q", op, t.Name)
		}
		return allowDecision()
	case KindAnd:
		for _, child := range rule.All {
			if d := t.gate(actor, op, child); !d.Allowed {
				return d
			}
		}
		return allowDecision()
	}
	return deny(DenyForbidden, "unrecognized rule for %s on %q", op, t.Name)
}

// authorizeRow applies organization isolation and custom conditions against
// a fetched candidate row.
func (t *TableSet) authorizeRow(actor domain.Actor, op domain.Operation, rule *Rule, row domain.Row) Decision {
	// Organization isolation first: a cross-tenant row must look like it
	// does not exist, regardless of how broad the role rule is.
	if t.OrganizationScoped && !t.sameOrganization(actor, row) {
		return deny(DenyNotFound, "record not found in %q", t.Name)
	}

	ok, err := t.evalRowRule(actor, rule, row)
	if err != nil {
		return deny(DenyForbidden, "condition for %s on %q: %v", op, t.Name, err)
	}
	if ok {
		return allowDecision()
	}

	// The operation's condition failed. If the row is not even visible
	// under the read rule, report NotFound; a readable-but-not-operable row
	// is a true Forbidden ("viewable but not editable").
	if op != domain.OpRead {
		visible, verr := t.evalRowRule(actor, t.Rules[domain.OpRead], row)
		if verr == nil && !visible {
			return deny(DenyNotFound, "record not found in %q", t.Name)
		}
		return deny(DenyForbidden, "record in %q may not be modified: %s rule not satisfied", t.Name, op)
	}
	return deny(DenyNotFound, "record not found in %q", t.Name)
}

// evalRowRule evaluates the row-dependent part of a rule. Row-independent
// kinds always pass here because the gate already admitted the actor.
func (t *TableSet) evalRowRule(actor domain.Actor, rule *Rule, row domain.Row) (bool, error) {
	if rule == nil {
		return false, nil
	}
	switch rule.Kind {
	case KindCustom:
		return Eval(rule.Condition, row, sessionFor(actor))
	case KindAnd:
		for _, child := range rule.All {
			ok, err := t.evalRowRule(actor, child, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case KindDenyAll:
		return false, nil
	}
	return true, nil
}

// sameOrganization reports whether the row belongs to the actor's active
// organization. An actor with no active organization matches nothing.
func (t *TableSet) sameOrganization(actor domain.Actor, row domain.Row) bool {
	if actor.OrganizationID == "" {
		return false
	}
	val, ok := row["organization_id"]
	if !ok || val == nil {
		return false
	}
	s, ok := toString(val)
	return ok && s == actor.OrganizationID
}
