package catalog

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, s audit.Submission) model.AuditEvent
}

// Admin applies role changes made at runtime: it persists them, installs
// them into the live catalog and audits them.
type Admin struct {
	catalog *Catalog
	roles   store.RoleStore
	audit   Auditor
	clock   clock.Clock
	logger  *zap.Logger
}

// NewAdmin returns an Admin over c.
func NewAdmin(c *Catalog, roles store.RoleStore, auditor Auditor, clk clock.Clock, logger *zap.Logger) *Admin {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{catalog: c, roles: roles, audit: auditor, clock: clk, logger: logger}
}

// Sync installs every persisted role into the catalog. Roles that no longer
// validate against the registry are skipped and logged.
func (a *Admin) Sync(ctx context.Context) error {
	roles, err := a.roles.ListRoles(ctx)
	if err != nil {
		return apperr.Storage("list roles", err)
	}
	for _, r := range roles {
		if err := a.catalog.PutRole(r); err != nil {
			a.logger.Warn("skipping persisted role", zap.String("role", r.Name), zap.Error(err))
		}
	}
	return nil
}

// UpsertRole creates or replaces a role. The actor's role must manage the
// target or be more senior, the matrix must only use known keys and the
// hierarchy level of an existing role cannot change. Anything the change
// adds must already be within the actor's own reach; see
// Catalog.CheckDelegation.
func (a *Admin) UpsertRole(ctx context.Context, actor audit.Actor, role model.Role) (model.Role, error) {
	if !a.catalog.CanManage(actor.Role, role) {
		a.record(ctx, actor, role.Name, model.ChangeRoleMatrix, model.Failure("not authorized"))
		return model.Role{}, apperr.Forbidden("%s may not manage role %s", actor.Role, role.Name)
	}
	if role.Matrix == nil {
		role.Matrix = model.Matrix{}
	}
	if err := a.catalog.CheckRole(role); err != nil {
		return model.Role{}, err
	}
	if err := a.catalog.CheckDelegation(actor.Role, role); err != nil {
		a.record(ctx, actor, role.Name, model.ChangeRoleMatrix, model.Failure("not authorized"))
		return model.Role{}, err
	}

	role.UpdatedAt = a.clock.Now()
	if err := a.roles.SaveRole(ctx, &role); err != nil {
		return model.Role{}, apperr.Storage("save role", err)
	}
	if err := a.catalog.PutRole(role); err != nil {
		return model.Role{}, err
	}

	a.record(ctx, actor, role.Name, model.ChangeRoleMatrix, model.Success())
	return role.Clone(), nil
}

// SetDisabled soft-disables or re-enables a role. A disabled role resolves
// as if its matrix were empty.
func (a *Admin) SetDisabled(ctx context.Context, actor audit.Actor, name string, disabled bool) (model.Role, error) {
	role, ok := a.catalog.Role(name)
	if !ok {
		return model.Role{}, apperr.NotFound("role %s", name)
	}
	if !a.catalog.CanManage(actor.Role, role) {
		a.record(ctx, actor, name, model.ChangeRoleStatus, model.Failure("not authorized"))
		return model.Role{}, apperr.Forbidden("%s may not manage role %s", actor.Role, name)
	}
	if role.Disabled == disabled {
		return role, nil
	}

	role.Disabled = disabled
	role.UpdatedAt = a.clock.Now()
	if err := a.roles.SaveRole(ctx, &role); err != nil {
		return model.Role{}, apperr.Storage("save role", err)
	}
	if err := a.catalog.PutRole(role); err != nil {
		return model.Role{}, err
	}

	a.record(ctx, actor, name, model.ChangeRoleStatus, model.Success(), "disabled", strconv.FormatBool(disabled))
	return role, nil
}

func (a *Admin) record(ctx context.Context, actor audit.Actor, role, change string, outcome model.Outcome, extra ...string) {
	meta := map[string]string{
		model.MetaChange: change,
		model.MetaRole:   role,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		meta[extra[i]] = extra[i+1]
	}
	a.audit.Record(ctx, actor.Submit(audit.Submission{
		Category:      model.CategoryPermissionChange,
		Operation:     model.OpAdmin,
		ResourceTable: "roles",
		ResourceID:    role,
		Outcome:       outcome,
		Metadata:      meta,
	}))
}
