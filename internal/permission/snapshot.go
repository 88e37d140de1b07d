package permission

import (
	"sort"
	"sync/atomic"
	"time"

	"basekit/internal/domain"
)

// Snapshot is one immutable compiled artifact set: every table's resolved
// permission set plus its compiled RLS policies. A snapshot is built once at
// schema (re)load and shared read-only across all concurrent requests.
type Snapshot struct {
	Tables   map[string]*TableSet
	Policies map[string]TablePolicies
	LoadedAt time.Time
}

// Compile resolves inheritance, validates every custom condition against the
// table's declared columns, and compiles the RLS policies. Any failure is a
// configuration error that must abort startup.
func Compile(configs []TableConfig) (*Snapshot, error) {
	for i := range configs {
		if err := validateConditions(&configs[i]); err != nil {
			return nil, err
		}
	}

	tables, err := Resolve(configs)
	if err != nil {
		return nil, err
	}

	policies := make(map[string]TablePolicies, len(tables))
	for name, set := range tables {
		policies[name] = CompilePolicies(set)
	}

	return &Snapshot{
		Tables:   tables,
		Policies: policies,
		LoadedAt: time.Now(),
	}, nil
}

// Table returns the resolved permission set for a table.
func (s *Snapshot) Table(name string) (*TableSet, bool) {
	set, ok := s.Tables[name]
	return set, ok
}

// TableNames returns all table names in sorted order.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateConditions checks every custom condition's column references
// against the table's declared columns, plus the implicit system columns.
// Validating once here means the evaluator never fails on an unknown column
// at request time.
func validateConditions(cfg *TableConfig) error {
	known := func(col string) bool {
		if _, ok := cfg.Columns[col]; ok {
			return true
		}
		switch col {
		case "id", "organization_id", "created_at", "updated_at":
			return true
		}
		return false
	}

	check := func(context string, rule *Rule) error {
		var bad string
		var walk func(r *Rule)
		walk = func(r *Rule) {
			if r == nil {
				return
			}
			if r.Kind == KindCustom {
				WalkColumns(r.Condition, func(name string) {
					if bad == "" && !known(name) {
						bad = name
					}
				})
			}
			for _, child := range r.All {
				walk(child)
			}
		}
		walk(rule)
		if bad != "" {
			return domain.ErrConfig(cfg.Name,
				"%s references unknown column %q", context, bad)
		}
		return nil
	}

	for op, rule := range cfg.Rules {
		if err := check(string(op)+" rule", rule); err != nil {
			return err
		}
	}
	for op, rule := range cfg.Override {
		if err := check("override "+string(op)+" rule", rule); err != nil {
			return err
		}
	}
	for _, f := range cfg.Fields {
		if err := check("field "+f.Field+" read rule", f.Read); err != nil {
			return err
		}
		if err := check("field "+f.Field+" write rule", f.Write); err != nil {
			return err
		}
	}
	return nil
}

// Holder shares the current snapshot between concurrent readers and the
// serialized reload path. Readers pin the snapshot they start with; a reload
// swaps the pointer atomically so no request ever observes a half-updated
// schema.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder seeded with the given snapshot.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(s)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Swap atomically replaces the active snapshot.
func (h *Holder) Swap(s *Snapshot) {
	h.current.Store(s)
}
