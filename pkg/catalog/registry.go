package catalog

import (
	"sort"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Category is a permission category and the actions it defines.
type Category struct {
	Name        string            `yaml:"name" json:"name"`
	Sensitivity model.Sensitivity `yaml:"sensitivity" json:"sensitivity"`
	Actions     []string          `yaml:"actions" json:"actions"`
}

// registry indexes categories by name and their actions by name.
type registry struct {
	categories map[string]Category
	actions    map[string]map[string]struct{}
}

func newRegistry(categories []Category) registry {
	r := registry{
		categories: make(map[string]Category, len(categories)),
		actions:    make(map[string]map[string]struct{}, len(categories)),
	}
	for _, c := range categories {
		r.categories[c.Name] = c
		set := make(map[string]struct{}, len(c.Actions))
		for _, a := range c.Actions {
			set[a] = struct{}{}
		}
		r.actions[c.Name] = set
	}
	return r
}

func (r registry) known(category, action string) bool {
	_, ok := r.actions[category][action]
	return ok
}

func (r registry) sensitivity(category string) model.Sensitivity {
	c, ok := r.categories[category]
	if !ok {
		return model.Critical
	}
	return c.Sensitivity
}

func (r registry) list() []Category {
	out := make([]Category, 0, len(r.categories))
	for _, c := range r.categories {
		c.Actions = append([]string(nil), c.Actions...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
