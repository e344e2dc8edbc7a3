package app

import (
	"context"
	"fmt"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
)

// RoleService handles the role registry of both scopes.
type RoleService struct {
	roles  role.Repository
	perms  permission.Repository
	cache  *DecisionCache
	logger *logger.Logger
}

// RoleServiceOption is a functional option for RoleService.
type RoleServiceOption func(*RoleService)

// WithRoleDecisionCache sets the cache invalidated when role definitions change.
func WithRoleDecisionCache(cache *DecisionCache) RoleServiceOption {
	return func(s *RoleService) {
		s.cache = cache
	}
}

// NewRoleService creates a new RoleService.
func NewRoleService(roles role.Repository, perms permission.Repository, log *logger.Logger, opts ...RoleServiceOption) *RoleService {
	s := &RoleService{
		roles:  roles,
		perms:  perms,
		logger: log.With("service", "role"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// ROLE CRUD OPERATIONS
// =============================================================================

// CreateRoleInput represents the input for creating a role.
type CreateRoleInput struct {
	Type          string   `json:"type" validate:"required,role_type"`
	Name          string   `json:"name" validate:"required,min=2,max=100"`
	Description   string   `json:"description" validate:"max=500"`
	PermissionIDs []string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

func (in CreateRoleInput) spec() role.Spec {
	return role.Spec{Name: in.Name, Type: role.Type(in.Type), Description: in.Description}
}

// CreateSystemRole creates a platform-wide role bundling system permissions.
func (s *RoleService) CreateSystemRole(ctx context.Context, input CreateRoleInput, actor shared.ID) (*role.Role, error) {
	permIDs, err := parseIDs(input.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	r, err := role.NewSystem(input.spec(), permIDs, actorRef(actor))
	if err != nil {
		return nil, err
	}
	return s.create(ctx, r, actor)
}

// CreateOrganizationRole creates a role bundling one organization's permissions.
func (s *RoleService) CreateOrganizationRole(ctx context.Context, organizationID string, input CreateRoleInput, actor shared.ID) (*role.Role, error) {
	orgID, err := parseID(organizationID, "organization id")
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs(input.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	r, err := role.NewForOrganization(orgID, input.spec(), permIDs, actorRef(actor))
	if err != nil {
		return nil, err
	}
	return s.create(ctx, r, actor)
}

func (s *RoleService) create(ctx context.Context, r *role.Role, actor shared.ID) (*role.Role, error) {
	if err := s.checkPermissions(ctx, r); err != nil {
		return nil, err
	}
	if err := s.roles.Create(ctx, r); err != nil {
		return nil, err
	}
	s.cache.InvalidateCatalog(ctx)

	s.logger.Info("role created",
		"actor_id", actor.String(),
		"role_id", r.ID().String(),
		"type", r.Type().String(),
		"scope", r.Scope().String(),
		"permission_count", len(r.PermissionIDs()),
	)
	return r, nil
}

// checkPermissions verifies every attached permission exists and matches
// the role's scope.
func (s *RoleService) checkPermissions(ctx context.Context, r *role.Role) error {
	ids := r.PermissionIDs()
	if len(ids) == 0 {
		return nil
	}

	perms, err := s.perms.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return role.ErrUnknownPermission
	}
	return r.ValidatePermissions(perms)
}

// GetRole retrieves a role together with its permissions and current
// assignees. A non-nil organization restricts the lookup to that
// organization's roles; nil restricts it to system roles.
func (s *RoleService) GetRole(ctx context.Context, organizationID *shared.ID, id string) (*role.Details, error) {
	r, err := s.getScoped(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	perms, err := s.roles.ListPermissions(ctx, r.ID())
	if err != nil {
		return nil, err
	}
	assignees, err := s.roles.ListAssignees(ctx, r.ID())
	if err != nil {
		return nil, err
	}

	return &role.Details{Role: r, Permissions: perms, Assignees: assignees}, nil
}

func (s *RoleService) getScoped(ctx context.Context, organizationID *shared.ID, id string) (*role.Role, error) {
	roleID, err := parseID(id, "role id")
	if err != nil {
		return nil, err
	}

	r, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if organizationID == nil && !r.IsSystem() {
		return nil, role.ErrRoleNotFound
	}
	if organizationID != nil && !r.BelongsTo(*organizationID) {
		return nil, role.ErrRoleNotFound
	}
	return r, nil
}

// GetSystemRoleByType retrieves a system role by its type.
func (s *RoleService) GetSystemRoleByType(ctx context.Context, t role.Type) (*role.Role, error) {
	return s.roles.GetByType(ctx, nil, t)
}

// ListSystemRoles lists system roles.
func (s *RoleService) ListSystemRoles(ctx context.Context, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	return s.roles.ListSystem(ctx, filter, page)
}

// ListOrganizationRoles lists one organization's roles.
func (s *RoleService) ListOrganizationRoles(ctx context.Context, organizationID string, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	orgID, err := parseID(organizationID, "organization id")
	if err != nil {
		return pagination.Result[*role.Role]{}, err
	}
	return s.roles.ListForOrganization(ctx, orgID, filter, page)
}

// UpdateRoleInput represents the input for updating a role. A non-nil
// PermissionIDs replaces the whole permission set; an empty list clears it.
type UpdateRoleInput struct {
	Name          *string   `json:"name" validate:"omitempty,min=2,max=100"`
	Description   *string   `json:"description" validate:"omitempty,max=500"`
	IsActive      *bool     `json:"is_active"`
	PermissionIDs *[]string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

// UpdateRole patches a role within the given scope (see GetRole).
func (s *RoleService) UpdateRole(ctx context.Context, organizationID *shared.ID, id string, input UpdateRoleInput, actor shared.ID) (*role.Role, error) {
	r, err := s.getScoped(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if err := r.Apply(role.Patch{
		Name:        input.Name,
		Description: input.Description,
		IsActive:    input.IsActive,
	}); err != nil {
		return nil, err
	}

	replace := input.PermissionIDs != nil
	if replace {
		permIDs, err := parseIDs(*input.PermissionIDs, "permission id")
		if err != nil {
			return nil, err
		}
		r.ReplacePermissions(permIDs)
		if err := s.checkPermissions(ctx, r); err != nil {
			return nil, err
		}
	}

	if err := s.roles.Update(ctx, r, replace); err != nil {
		return nil, err
	}
	s.cache.InvalidateCatalog(ctx)

	s.logger.Info("role updated",
		"actor_id", actor.String(),
		"role_id", r.ID().String(),
		"permissions_replaced", replace,
		"is_active", r.IsActive(),
	)
	return r, nil
}

// DeleteRole retires a role. It fails with ErrRoleInUse while any active
// assignment references it.
func (s *RoleService) DeleteRole(ctx context.Context, organizationID *shared.ID, id string, actor shared.ID) error {
	r, err := s.getScoped(ctx, organizationID, id)
	if err != nil {
		return err
	}

	if err := s.roles.Delete(ctx, r.ID()); err != nil {
		return err
	}
	s.cache.InvalidateCatalog(ctx)

	s.logger.Info("role deleted",
		"actor_id", actor.String(),
		"role_id", r.ID().String(),
		"type", r.Type().String(),
	)
	return nil
}
