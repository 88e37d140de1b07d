package permission

import (
	"sort"

	"basekit/internal/domain"
)

// FilterReadableFields returns a copy of the row with every field whose
// explicit read rule denies the actor removed. Denied keys are omitted
// entirely, never nulled. Fields without an explicit rule pass through:
// table-level read access was already granted to reach this point.
func (t *TableSet) FilterReadableFields(actor domain.Actor, row domain.Row) domain.Row {
	if row == nil {
		return nil
	}
	out := row.Clone()
	for name, f := range t.Fields {
		if f.Read == nil {
			continue
		}
		if _, present := out[name]; !present {
			continue
		}
		if !t.fieldAllows(actor, f.Read, row) {
			delete(out, name)
		}
	}
	return out
}

// AssertWritableFields rejects the whole write when any submitted key is
// governed by a rule that denies the actor. The check is all-or-nothing: the
// first offending field aborts the operation and is named in the error.
//
// The server-managed columns id, created_at, and updated_at carry an implicit
// always-deny write rule: submitting one is a field-permission denial, not a
// malformed request. On organization-scoped tables the organization_id column
// is implicitly write-protected against any value differing from the actor's
// active organization, independent of declared field rules — a record can
// never be moved across tenants through a generic field update. existing may
// be nil on create paths.
func (t *TableSet) AssertWritableFields(actor domain.Actor, submitted domain.Row, existing domain.Row) error {
	// Deterministic order so the same request always names the same field.
	keys := make([]string, 0, len(submitted))
	for k := range submitted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch key {
		case "id", "created_at", "updated_at":
			return domain.ErrAccessDenied("field %q is managed by the server and may not be written", key)
		}
		if t.OrganizationScoped && key == "organization_id" {
			val, _ := toString(submitted[key])
			if val != actor.OrganizationID {
				return domain.ErrAccessDenied(
					"field %q may not be set to a different organization", key)
			}
			continue
		}
		f, ok := t.Fields[key]
		if !ok || f.Write == nil {
			// Inherits the table-level update rule, which already passed.
			continue
		}
		if !t.fieldAllows(actor, f.Write, existing) {
			return domain.ErrAccessDenied("field %q is not writable for this actor", key)
		}
	}
	return nil
}

// fieldAllows evaluates a field rule against the actor, consulting the row
// for custom conditions when one is available. Field rules can only narrow
// table-level access, so a denial here removes or rejects the field without
// revisiting the table-level decision.
func (t *TableSet) fieldAllows(actor domain.Actor, rule *Rule, row domain.Row) bool {
	switch rule.Kind {
	case KindAllowAll:
		return true
	case KindDenyAll:
		return false
	case KindAuthenticated:
		return actor.Authenticated
	case KindRoles:
		return actor.Authenticated && rule.HasRole(actor.Role)
	case KindCustom:
		if !actor.Authenticated {
			return false
		}
		if rule.RequiresRow() && row == nil {
			// No candidate row to test (create path): a row-dependent field
			// rule cannot be satisfied yet, so the narrow reading wins.
			return false
		}
		ok, err := Eval(rule.Condition, row, sessionFor(actor))
		return err == nil && ok
	case KindAnd:
		for _, child := range rule.All {
			if !t.fieldAllows(actor, child, row) {
				return false
			}
		}
		return true
	}
	return false
}
