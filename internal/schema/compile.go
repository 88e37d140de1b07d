package schema

import (
	"fmt"

	"basekit/internal/domain"
	"basekit/internal/permission"
)

// Configs converts the parsed schema into the permission engine's input
// form, parsing every custom condition along the way. Condition parse
// failures are configuration errors carrying the declaring file's path.
func (s *Schema) Configs() ([]permission.TableConfig, error) {
	configs := make([]permission.TableConfig, 0, len(s.Tables))
	for _, table := range s.Tables {
		cfg, err := tableConfig(&table)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// Compile validates, converts, and compiles the schema into an immutable
// permission snapshot. This is the single entry point used at startup and
// by the reload path.
func Compile(s *Schema) (*permission.Snapshot, error) {
	if errs := Validate(s); len(errs) > 0 {
		return nil, errs[0]
	}
	configs, err := s.Configs()
	if err != nil {
		return nil, err
	}
	return permission.Compile(configs)
}

func tableConfig(table *TableResource) (*permission.TableConfig, error) {
	columns := make(map[string]string, len(table.Spec.Columns))
	for _, col := range table.Spec.Columns {
		columns[col.Name] = col.Type
	}

	cfg := &permission.TableConfig{
		Name:               table.Name,
		Inherit:            table.Spec.Permissions.Inherit,
		OrganizationScoped: table.Spec.OrganizationScoped,
		Rules:              map[domain.Operation]*permission.Rule{},
		Columns:            columns,
	}

	perms := table.Spec.Permissions
	ownRules := map[domain.Operation]*RuleSpec{
		domain.OpRead:   perms.Read,
		domain.OpCreate: perms.Create,
		domain.OpUpdate: perms.Update,
		domain.OpDelete: perms.Delete,
	}
	for op, spec := range ownRules {
		if spec == nil {
			continue
		}
		rule, err := compileRule(table, fmt.Sprintf("%s rule", op), spec)
		if err != nil {
			return nil, err
		}
		cfg.Rules[op] = rule
	}

	if perms.Override != nil {
		cfg.Override = map[domain.Operation]*permission.Rule{}
		overrides := map[domain.Operation]*RuleSpec{
			domain.OpRead:   perms.Override.Read,
			domain.OpCreate: perms.Override.Create,
			domain.OpUpdate: perms.Override.Update,
			domain.OpDelete: perms.Override.Delete,
		}
		for op, spec := range overrides {
			if spec == nil {
				continue
			}
			rule, err := compileRule(table, fmt.Sprintf("override %s rule", op), spec)
			if err != nil {
				return nil, err
			}
			cfg.Override[op] = rule
		}
	}

	for _, f := range table.Spec.Fields {
		field := permission.FieldRule{Field: f.Field}
		if f.Read != nil {
			rule, err := compileRule(table, fmt.Sprintf("field %q read rule", f.Field), f.Read)
			if err != nil {
				return nil, err
			}
			field.Read = rule
		}
		switch {
		case f.ReadOnly:
			field.Write = permission.DenyAll()
		case f.Write != nil:
			rule, err := compileRule(table, fmt.Sprintf("field %q write rule", f.Field), f.Write)
			if err != nil {
				return nil, err
			}
			field.Write = rule
		}
		cfg.Fields = append(cfg.Fields, field)
	}

	return cfg, nil
}

func compileRule(table *TableResource, context string, spec *RuleSpec) (*permission.Rule, error) {
	switch {
	case spec.Shorthand != "":
		switch spec.Shorthand {
		case "all":
			return permission.AllowAll(), nil
		case "authenticated":
			return permission.Authenticated(), nil
		case "none":
			return permission.DenyAll(), nil
		}
		return nil, domain.ErrConfig(table.Path, "%s: unknown shorthand %q", context, spec.Shorthand)
	case len(spec.Roles) > 0:
		return permission.Roles(spec.Roles...), nil
	case spec.Condition != "":
		expr, err := permission.ParseCondition(spec.Condition)
		if err != nil {
			return nil, domain.ErrConfig(table.Path, "%s: %v", context, err)
		}
		return permission.Custom(expr), nil
	case len(spec.And) > 0:
		children := make([]*permission.Rule, 0, len(spec.And))
		for i := range spec.And {
			child, err := compileRule(table, fmt.Sprintf("%s (and[%d])", context, i), &spec.And[i])
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return permission.And(children...), nil
	}
	return nil, domain.ErrConfig(table.Path, "%s: empty rule", context)
}
