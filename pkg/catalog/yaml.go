package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Definition is the on-disk form of a catalog.
//
//	categories:
//	  - name: financial
//	    sensitivity: CRITICAL
//	    actions: [view_reports, export]
//	roles:
//	  - name: accountant
//	    hierarchy_level: 4
//	    matrix:
//	      financial: {view_reports: true}
type Definition struct {
	Categories []Category   `yaml:"categories" json:"categories"`
	Roles      []model.Role `yaml:"roles" json:"roles"`
}

// Parse decodes and validates a YAML catalog definition. Unknown fields are
// rejected.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, apperr.Validation("failed to parse catalog: %v", err)
	}
	def.normalize()
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Load reads and parses the catalog file at path.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal encodes def as YAML.
func (def Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(def)
}

func (def *Definition) normalize() {
	for i := range def.Categories {
		def.Categories[i].Sensitivity = model.Sensitivity(strings.ToUpper(string(def.Categories[i].Sensitivity)))
	}
	for i := range def.Roles {
		if def.Roles[i].Matrix == nil {
			def.Roles[i].Matrix = model.Matrix{}
		}
	}
}

// Validate checks that names are unique, that every sensitivity is known,
// and that every role matrix and manages set only refers to known
// categories, actions and roles.
func (def Definition) Validate() error {
	categories := make(map[string]bool, len(def.Categories))
	for _, c := range def.Categories {
		if c.Name == "" {
			return apperr.Validation("category with empty name")
		}
		if categories[c.Name] {
			return apperr.Validation("duplicate category %q", c.Name)
		}
		categories[c.Name] = true
		if !c.Sensitivity.Valid() {
			return apperr.Validation("category %q has unknown sensitivity %q", c.Name, c.Sensitivity)
		}
		if len(c.Actions) == 0 {
			return apperr.Validation("category %q defines no actions", c.Name)
		}
		seen := make(map[string]bool, len(c.Actions))
		for _, a := range c.Actions {
			if a == "" || seen[a] {
				return apperr.Validation("category %q has an empty or duplicate action %q", c.Name, a)
			}
			seen[a] = true
		}
	}

	reg := newRegistry(def.Categories)
	roles := make(map[string]bool, len(def.Roles))
	for _, r := range def.Roles {
		if r.Name == "" {
			return apperr.Validation("role with empty name")
		}
		if roles[r.Name] {
			return apperr.Validation("duplicate role %q", r.Name)
		}
		roles[r.Name] = true
		if err := validateMatrix(reg, r.Name, r.Matrix); err != nil {
			return err
		}
	}
	for _, r := range def.Roles {
		for _, m := range r.Manages {
			if !roles[m] {
				return apperr.Validation("role %q manages unknown role %q", r.Name, m)
			}
		}
	}
	return nil
}

func validateMatrix(reg registry, role string, m model.Matrix) error {
	for category, actions := range m {
		if _, ok := reg.categories[category]; !ok {
			return apperr.Validation("role %q: unknown category %q", role, category)
		}
		for action := range actions {
			if !reg.known(category, action) {
				return apperr.Validation("role %q: unknown action %q in category %q", role, action, category)
			}
		}
	}
	return nil
}
