package app

import (
	"context"
	"fmt"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
)

// PermissionService manages the permission catalog of both scopes.
type PermissionService struct {
	repo   permission.Repository
	cache  *DecisionCache
	logger *logger.Logger
}

// PermissionServiceOption is a functional option for PermissionService.
type PermissionServiceOption func(*PermissionService)

// WithPermissionDecisionCache sets the cache invalidated on catalog changes.
func WithPermissionDecisionCache(cache *DecisionCache) PermissionServiceOption {
	return func(s *PermissionService) {
		s.cache = cache
	}
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(repo permission.Repository, log *logger.Logger, opts ...PermissionServiceOption) *PermissionService {
	s := &PermissionService{
		repo:   repo,
		logger: log.With("service", "permission"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePermissionInput represents the input for creating a permission.
type CreatePermissionInput struct {
	Type        string `json:"type" validate:"required,permission_type"`
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
	Resource    string `json:"resource" validate:"max=50"`
	Action      string `json:"action" validate:"max=50"`
}

func (in CreatePermissionInput) spec() permission.Spec {
	return permission.Spec{
		Name:        in.Name,
		Type:        permission.Type(in.Type),
		Description: in.Description,
		Resource:    in.Resource,
		Action:      in.Action,
	}
}

// CreateSystemPermission adds a platform-wide permission.
func (s *PermissionService) CreateSystemPermission(ctx context.Context, input CreatePermissionInput, actor shared.ID) (*permission.Permission, error) {
	p, err := permission.NewSystem(input.spec())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("system permission created",
		"actor_id", actor.String(),
		"permission_id", p.ID().String(),
		"type", p.Type().String(),
	)
	return p, nil
}

// CreateOrganizationPermission adds a permission owned by an organization.
func (s *PermissionService) CreateOrganizationPermission(ctx context.Context, organizationID string, input CreatePermissionInput, actor shared.ID) (*permission.Permission, error) {
	orgID, err := parseID(organizationID, "organization id")
	if err != nil {
		return nil, err
	}

	p, err := permission.NewForOrganization(orgID, input.spec())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("organization permission created",
		"actor_id", actor.String(),
		"organization_id", orgID.String(),
		"permission_id", p.ID().String(),
		"type", p.Type().String(),
	)
	return p, nil
}

// GetPermission retrieves a permission. A non-nil organization restricts
// the lookup to that organization's permissions; nil restricts it to
// system permissions.
func (s *PermissionService) GetPermission(ctx context.Context, organizationID *shared.ID, id string) (*permission.Permission, error) {
	permID, err := parseID(id, "permission id")
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, permID)
	if err != nil {
		return nil, err
	}
	if organizationID == nil && !p.IsSystem() {
		return nil, permission.ErrPermissionNotFound
	}
	if organizationID != nil && !p.BelongsTo(*organizationID) {
		return nil, permission.ErrPermissionNotFound
	}
	return p, nil
}

// GetSystemPermissionByType retrieves a system permission by its type.
func (s *PermissionService) GetSystemPermissionByType(ctx context.Context, t permission.Type) (*permission.Permission, error) {
	return s.repo.GetByType(ctx, nil, t)
}

// ListSystemPermissions lists system permissions.
func (s *PermissionService) ListSystemPermissions(ctx context.Context, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	return s.repo.ListSystem(ctx, filter, page)
}

// ListOrganizationPermissions lists one organization's permissions.
func (s *PermissionService) ListOrganizationPermissions(ctx context.Context, organizationID string, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	orgID, err := parseID(organizationID, "organization id")
	if err != nil {
		return pagination.Result[*permission.Permission]{}, err
	}
	return s.repo.ListForOrganization(ctx, orgID, filter, page)
}

// UpdatePermissionInput represents the input for updating a permission.
// The type is immutable.
type UpdatePermissionInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Resource    *string `json:"resource" validate:"omitempty,max=50"`
	Action      *string `json:"action" validate:"omitempty,max=50"`
	IsActive    *bool   `json:"is_active"`
}

// UpdatePermission patches a permission within the given scope (see
// GetPermission). Deactivation takes effect for every later check.
func (s *PermissionService) UpdatePermission(ctx context.Context, organizationID *shared.ID, id string, input UpdatePermissionInput, actor shared.ID) (*permission.Permission, error) {
	p, err := s.GetPermission(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if err := p.Apply(permission.Patch{
		Name:        input.Name,
		Description: input.Description,
		Resource:    input.Resource,
		Action:      input.Action,
		IsActive:    input.IsActive,
	}); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}
	s.cache.InvalidateCatalog(ctx)

	s.logger.Info("permission updated",
		"actor_id", actor.String(),
		"permission_id", p.ID().String(),
		"type", p.Type().String(),
		"is_active", p.IsActive(),
	)
	return p, nil
}
