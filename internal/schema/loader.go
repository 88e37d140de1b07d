package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadDirectory reads all table declarations from <dir>/tables/*.yaml and
// returns the parsed schema. Files decode in strict mode: unknown fields are
// configuration errors unless opted out.
func LoadDirectory(dir string) (*Schema, error) {
	return LoadDirectoryWithOptions(dir, LoadOptions{})
}

// LoadDirectoryWithOptions reads the schema using caller-provided options.
func LoadDirectoryWithOptions(dir string, opts LoadOptions) (*Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: %s is not a directory", dir)
	}

	tablesDir := filepath.Join(dir, "tables")
	entries, err := os.ReadDir(tablesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Schema{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", tablesDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(tablesDir, name))
		}
	}
	sort.Strings(paths)

	schema := &Schema{}
	for _, path := range paths {
		doc, err := loadTableFile(path, opts)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, TableResource{
			Name: doc.Metadata.Name,
			Path: path,
			Spec: doc.Spec,
		})
	}
	return schema, nil
}

func loadTableFile(path string, opts LoadOptions) (*TableDoc, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc TableDoc
	if opts.AllowUnknownFields {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if doc.APIVersion != SupportedAPIVersion {
		return nil, fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", path, doc.APIVersion, SupportedAPIVersion)
	}
	if doc.Kind != KindTable {
		return nil, fmt.Errorf("%s: unexpected kind %q (expected %q)", path, doc.Kind, KindTable)
	}
	if doc.Metadata.Name == "" {
		return nil, fmt.Errorf("%s: metadata.name is required", path)
	}
	return &doc, nil
}
