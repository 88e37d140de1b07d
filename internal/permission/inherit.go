package permission

import (
	"sort"
	"strings"

	"basekit/internal/domain"
)

// dfs colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current path
	colorBlack        // fully resolved
)

// Resolve materializes the effective permission set for every table,
// following inherit declarations transitively. It fails on circular
// inheritance and on references to unknown tables; both are configuration
// errors detected before the server starts serving requests.
//
// Resolution order is topological: a parent is always resolved before its
// children, so a chain grandparent -> parent -> child propagates the root
// ancestor's rules all the way down. Override entries replace individual
// operations by name; absent keys keep the inherited rule.
func Resolve(configs []TableConfig) (map[string]*TableSet, error) {
	byName := make(map[string]*TableConfig, len(configs))
	for i := range configs {
		cfg := &configs[i]
		if _, dup := byName[cfg.Name]; dup {
			return nil, domain.ErrConfig(cfg.Name, "table %q declared more than once", cfg.Name)
		}
		byName[cfg.Name] = cfg
	}

	// Validate inheritance targets up front so a dangling reference is
	// reported even when the referencing table is never visited first.
	for _, cfg := range byName {
		if cfg.Inherit == "" {
			continue
		}
		if _, ok := byName[cfg.Inherit]; !ok {
			return nil, domain.ErrConfig(cfg.Name,
				"inheritance target %q not found", cfg.Inherit)
		}
	}

	resolved := make(map[string]*TableSet, len(configs))
	color := make(map[string]int, len(configs))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case colorBlack:
			return nil
		case colorGray:
			cycle := append(path, name)
			return domain.ErrConfig(name,
				"circular inheritance detected: %s", strings.Join(cycle, " -> "))
		}
		color[name] = colorGray

		cfg := byName[name]
		if cfg.Inherit != "" {
			if err := visit(cfg.Inherit, append(path, name)); err != nil {
				return err
			}
		}

		resolved[name] = materialize(cfg, resolved[cfg.Inherit])
		color[name] = colorBlack
		return nil
	}

	// Visit in sorted order so error messages are deterministic.
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// materialize builds the effective TableSet for one table from its own
// config and its (already resolved) parent, if any. Operations with no rule
// from any source default to deny.
func materialize(cfg *TableConfig, parent *TableSet) *TableSet {
	set := &TableSet{
		Name:               cfg.Name,
		OrganizationScoped: cfg.OrganizationScoped,
		Rules:              make(map[domain.Operation]*Rule, len(domain.Operations)),
		Fields:             make(map[string]FieldRule, len(cfg.Fields)),
		Columns:            cfg.Columns,
	}

	for _, op := range domain.Operations {
		switch {
		case cfg.Override[op] != nil:
			set.Rules[op] = cfg.Override[op]
		case cfg.Rules[op] != nil:
			set.Rules[op] = cfg.Rules[op]
		case parent != nil && parent.Rules[op] != nil:
			set.Rules[op] = parent.Rules[op]
		default:
			set.Rules[op] = DenyAll()
		}
	}

	// Field overlays are per-table and do not inherit: a child narrows its
	// own columns, which need not exist on the parent.
	for _, f := range cfg.Fields {
		set.Fields[f.Field] = f
	}

	return set
}
