package catalog

import (
	"sort"
	"sync"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Catalog is the live role catalog.
type Catalog struct {
	mu  sync.RWMutex
	reg registry
	// base holds the roles from the definition; overrides holds roles
	// written at runtime through PutRole, which survive Replace.
	base      map[string]model.Role
	overrides map[string]model.Role
}

// New builds a catalog from def.
func New(def Definition) (*Catalog, error) {
	c := &Catalog{overrides: map[string]model.Role{}}
	if err := c.Replace(def); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefault builds a catalog from the built-in clinic definition.
func NewDefault() *Catalog {
	c, err := New(Default())
	if err != nil {
		panic(err)
	}
	return c
}

// Replace validates def and swaps it in. A role already in the catalog
// keeps its hierarchy level. Runtime role overrides whose matrix no longer
// validates against the new registry are dropped.
func (c *Catalog) Replace(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	reg := newRegistry(def.Categories)
	base := make(map[string]model.Role, len(def.Roles))
	for _, r := range def.Roles {
		base[r.Name] = r.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, r := range base {
		if existing, ok := c.role(name); ok && existing.HierarchyLevel != r.HierarchyLevel {
			return apperr.Validation("role %q: hierarchy level is immutable (%d)", name, existing.HierarchyLevel)
		}
	}
	c.reg = reg
	c.base = base
	for name, r := range c.overrides {
		if validateMatrix(reg, name, r.Matrix) != nil {
			delete(c.overrides, name)
		}
	}
	return nil
}

// Known reports whether category/action is in the registry.
func (c *Catalog) Known(category, action string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.known(category, action)
}

// Sensitivity returns the sensitivity of category. Unknown categories are
// CRITICAL.
func (c *Catalog) Sensitivity(category string) model.Sensitivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.sensitivity(category)
}

// Categories returns the registry sorted by name.
func (c *Catalog) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.list()
}

// Role returns the named role, disabled or not.
func (c *Catalog) Role(name string) (model.Role, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.role(name)
	if !ok {
		return model.Role{}, false
	}
	return r.Clone(), true
}

func (c *Catalog) role(name string) (model.Role, bool) {
	if r, ok := c.overrides[name]; ok {
		return r, true
	}
	r, ok := c.base[name]
	return r, ok
}

// Roles returns every role sorted by hierarchy level, then name.
func (c *Catalog) Roles() []model.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Role, 0, len(c.base)+len(c.overrides))
	for name := range c.base {
		r, _ := c.role(name)
		out = append(out, r.Clone())
	}
	for name, r := range c.overrides {
		if _, ok := c.base[name]; !ok {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HierarchyLevel != out[j].HierarchyLevel {
			return out[i].HierarchyLevel < out[j].HierarchyLevel
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Lookup returns the matrix entry of role for category/action. Unknown and
// disabled roles have no entries.
func (c *Catalog) Lookup(role, category, action string) (allowed bool, present bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.role(role)
	if !ok || r.Disabled {
		return false, false
	}
	return r.Matrix.Lookup(category, action)
}

// Allows reports whether role's matrix explicitly allows category/action.
func (c *Catalog) Allows(role, category, action string) bool {
	allowed, present := c.Lookup(role, category, action)
	return present && allowed
}

// CanManage reports whether actorRole may administer target: the actor's
// role lists target in its manages set, or is strictly more senior.
func (c *Catalog) CanManage(actorRole string, target model.Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canManage(actorRole, target)
}

func (c *Catalog) canManage(actorRole string, target model.Role) bool {
	actor, ok := c.role(actorRole)
	if !ok || actor.Disabled {
		return false
	}
	if actor.Manages.Contains(target.Name) {
		return true
	}
	level := target.HierarchyLevel
	if existing, ok := c.role(target.Name); ok {
		level = existing.HierarchyLevel
	}
	return actor.HierarchyLevel < level
}

// CheckDelegation reports whether actorRole may hand out what r adds to
// the current version of the role: every newly managed role must be one
// the actor can manage, and every newly allowed entry must be allowed by
// the actor's own matrix.
func (c *Catalog) CheckDelegation(actorRole string, r model.Role) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	existing, _ := c.role(r.Name)
	for _, name := range r.Manages {
		if existing.Manages.Contains(name) || name == r.Name {
			continue
		}
		target, ok := c.role(name)
		if !ok || !c.canManage(actorRole, target) {
			return apperr.Forbidden("%s may not delegate management of role %s", actorRole, name)
		}
	}

	actor, ok := c.role(actorRole)
	if !ok || actor.Disabled {
		return apperr.Forbidden("%s may not delegate permissions", actorRole)
	}
	for category, actions := range r.Matrix {
		for action, allowed := range actions {
			if !allowed || existing.Matrix.Allows(category, action) {
				continue
			}
			if !actor.Matrix.Allows(category, action) {
				return apperr.Forbidden("%s may not delegate %s.%s", actorRole, category, action)
			}
		}
	}
	return nil
}

// ValidateMatrix checks m against the registry.
func (c *Catalog) ValidateMatrix(role string, m model.Matrix) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validateMatrix(c.reg, role, m)
}

// CheckRole reports whether r could be installed with PutRole.
func (c *Catalog) CheckRole(r model.Role) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkRole(r)
}

// PutRole installs r as a runtime override. The hierarchy level of an
// existing role cannot change, and manages may only name existing roles.
func (c *Catalog) PutRole(r model.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRole(r); err != nil {
		return err
	}
	if r.Matrix == nil {
		r.Matrix = model.Matrix{}
	}
	c.overrides[r.Name] = r.Clone()
	return nil
}

func (c *Catalog) checkRole(r model.Role) error {
	if r.Name == "" {
		return apperr.Validation("role name is required")
	}
	if err := validateMatrix(c.reg, r.Name, r.Matrix); err != nil {
		return err
	}
	if existing, ok := c.role(r.Name); ok && existing.HierarchyLevel != r.HierarchyLevel {
		return apperr.Validation("role %q: hierarchy level is immutable (%d)", r.Name, existing.HierarchyLevel)
	}
	for _, m := range r.Manages {
		if _, ok := c.role(m); !ok && m != r.Name {
			return apperr.Validation("role %q manages unknown role %q", r.Name, m)
		}
	}
	return nil
}

// Definition returns the current catalog, overrides applied, in its
// on-disk form.
func (c *Catalog) Definition() Definition {
	return Definition{Categories: c.Categories(), Roles: c.Roles()}
}
