package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/openctemio/authz/pkg/catalog"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
)

// CatalogService applies declarative catalog documents. Applying is
// idempotent: entries whose type already exists in the scope are kept
// as they are.
type CatalogService struct {
	perms  permission.Repository
	roles  role.Repository
	cache  *DecisionCache
	logger *logger.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(perms permission.Repository, roles role.Repository, cache *DecisionCache, log *logger.Logger) *CatalogService {
	return &CatalogService{
		perms:  perms,
		roles:  roles,
		cache:  cache,
		logger: log.With("service", "catalog"),
	}
}

// ApplyResult counts what an apply created and skipped.
type ApplyResult struct {
	PermissionsCreated int `json:"permissions_created"`
	PermissionsSkipped int `json:"permissions_skipped"`
	RolesCreated       int `json:"roles_created"`
	RolesSkipped       int `json:"roles_skipped"`
}

// Changed reports whether the apply wrote anything.
func (r ApplyResult) Changed() bool {
	return r.PermissionsCreated > 0 || r.RolesCreated > 0
}

// Apply creates the catalog's permissions and roles in a scope. A nil
// organization applies to system scope.
func (s *CatalogService) Apply(ctx context.Context, c *catalog.Catalog, organizationID *shared.ID, actor shared.ID) (*ApplyResult, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}

	result := &ApplyResult{}
	byType := make(map[permission.Type]shared.ID, len(c.Permissions))

	for _, def := range c.Permissions {
		existing, err := s.perms.GetByType(ctx, organizationID, def.Type)
		switch {
		case err == nil:
			byType[def.Type] = existing.ID()
			result.PermissionsSkipped++
			continue
		case !errors.Is(err, permission.ErrPermissionNotFound):
			return result, fmt.Errorf("failed to look up permission %s: %w", def.Type, err)
		}

		var p *permission.Permission
		if organizationID == nil {
			p, err = permission.NewSystem(def.Spec())
		} else {
			p, err = permission.NewForOrganization(*organizationID, def.Spec())
		}
		if err != nil {
			return result, fmt.Errorf("permission %s: %w", def.Type, err)
		}
		if err := s.perms.Create(ctx, p); err != nil {
			return result, fmt.Errorf("failed to create permission %s: %w", def.Type, err)
		}
		byType[def.Type] = p.ID()
		result.PermissionsCreated++
	}

	for _, def := range c.Roles {
		_, err := s.roles.GetByType(ctx, organizationID, def.Type)
		switch {
		case err == nil:
			result.RolesSkipped++
			continue
		case !errors.Is(err, role.ErrRoleNotFound):
			return result, fmt.Errorf("failed to look up role %s: %w", def.Type, err)
		}

		permIDs := make([]shared.ID, 0, len(def.Permissions))
		for _, t := range def.Permissions {
			permIDs = append(permIDs, byType[t])
		}

		var r *role.Role
		if organizationID == nil {
			r, err = role.NewSystem(def.Spec(), permIDs, actorRef(actor))
		} else {
			r, err = role.NewForOrganization(*organizationID, def.Spec(), permIDs, actorRef(actor))
		}
		if err != nil {
			return result, fmt.Errorf("role %s: %w", def.Type, err)
		}
		if err := s.roles.Create(ctx, r); err != nil {
			return result, fmt.Errorf("failed to create role %s: %w", def.Type, err)
		}
		result.RolesCreated++
	}

	if result.Changed() {
		s.cache.InvalidateCatalog(ctx)
	}

	scope := "system"
	if organizationID != nil {
		scope = organizationID.String()
	}
	s.logger.Info("catalog applied",
		"scope", scope,
		"permissions_created", result.PermissionsCreated,
		"permissions_skipped", result.PermissionsSkipped,
		"roles_created", result.RolesCreated,
		"roles_skipped", result.RolesSkipped,
	)
	return result, nil
}
