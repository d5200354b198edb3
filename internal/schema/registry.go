package schema

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Registry maps category name to its validated schema. Lookup of an unknown
// category is a hard error: matching without a schema is meaningless and
// must never silently produce a garbage score.
type Registry struct {
	byName map[string]*CategorySchema
}

// NewRegistry creates a registry from the given schemas, validating each.
func NewRegistry(schemas ...*CategorySchema) (*Registry, error) {
	r := &Registry{byName: make(map[string]*CategorySchema, len(schemas))}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and adds a schema. Duplicate names are rejected.
func (r *Registry) Register(s *CategorySchema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[s.Name]; exists {
		return eris.Errorf("schema registry: duplicate category %q", s.Name)
	}
	r.byName[s.Name] = s
	return nil
}

// Lookup returns the schema for a category or a hard error.
func (r *Registry) Lookup(category string) (*CategorySchema, error) {
	s, ok := r.byName[category]
	if !ok {
		return nil, eris.Errorf("schema registry: unknown category %q", category)
	}
	return s, nil
}

// Names returns all registered category names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// schemaFile is the on-disk YAML shape: a top-level "schemas" list.
type schemaFile struct {
	Schemas []*CategorySchema `yaml:"schemas"`
}

// LoadFile reads category schemas from one YAML file and registers them.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "schema registry: read %s", path)
	}

	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return eris.Wrapf(err, "schema registry: parse %s", path)
	}
	if len(file.Schemas) == 0 {
		return eris.Errorf("schema registry: %s defines no schemas", path)
	}

	for _, s := range file.Schemas {
		applyDefaults(s)
		if err := r.Register(s); err != nil {
			return eris.Wrapf(err, "schema registry: %s", path)
		}
	}
	return nil
}

// LoadDir reads every *.yaml and *.yml file in a directory.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "schema registry: read dir %s", dir)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
		loaded++
	}
	if loaded == 0 {
		return eris.Errorf("schema registry: no schema files in %s", dir)
	}
	return nil
}

// applyDefaults fills conservative defaults for optional matching rules so
// hand-written schema files need only declare attributes and caps.
func applyDefaults(s *CategorySchema) {
	if s.FamilyCredit == 0 {
		s.FamilyCredit = 0.7
	}
	if s.MinMatchScore == 0 {
		s.MinMatchScore = 75
	}
	if s.MinCompleteness == 0 {
		s.MinCompleteness = 40
	}
}
