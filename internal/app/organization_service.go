package app

import (
	"context"
	"fmt"

	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/logger"
)

// organizationSeedNames labels the permissions seeded into new organizations.
var organizationSeedNames = map[permission.Type]string{
	permission.CollaboratorManage: "Manage collaborators",
	permission.PermissionManage:   "Manage permissions",
	permission.RoleManage:         "Manage roles",
	permission.OrganizationView:   "View organization",
}

// OrganizationService handles organizations and their ownership.
type OrganizationService struct {
	orgs   organization.Repository
	users  user.Repository
	cache  *DecisionCache
	logger *logger.Logger
}

// OrganizationServiceOption is a functional option for OrganizationService.
type OrganizationServiceOption func(*OrganizationService)

// WithOrganizationDecisionCache sets the cache invalidated on ownership changes.
func WithOrganizationDecisionCache(cache *DecisionCache) OrganizationServiceOption {
	return func(s *OrganizationService) {
		s.cache = cache
	}
}

// NewOrganizationService creates a new OrganizationService.
func NewOrganizationService(orgs organization.Repository, users user.Repository, log *logger.Logger, opts ...OrganizationServiceOption) *OrganizationService {
	s := &OrganizationService{
		orgs:   orgs,
		users:  users,
		logger: log.With("service", "organization"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganizationInput represents the input for creating an organization.
type CreateOrganizationInput struct {
	Name string `json:"name" validate:"required,min=2,max=255"`
	Slug string `json:"slug" validate:"omitempty,min=3,max=100,slug"`
}

// CreateOrganization creates an organization owned by the actor and seeds
// the permissions its endpoints are guarded by.
func (s *OrganizationService) CreateOrganization(ctx context.Context, input CreateOrganizationInput, actor shared.ID) (*organization.Organization, error) {
	o, err := organization.New(input.Name, input.Slug, actor)
	if err != nil {
		return nil, err
	}

	seed := make([]*permission.Permission, 0, len(permission.OrganizationDefaults()))
	for _, t := range permission.OrganizationDefaults() {
		p, err := permission.NewForOrganization(o.ID(), permission.Spec{
			Name:     organizationSeedNames[t],
			Type:     t,
			Resource: "organization",
			Action:   t.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build seed permission %s: %w", t, err)
		}
		seed = append(seed, p)
	}

	if err := s.orgs.Create(ctx, o, seed); err != nil {
		return nil, err
	}

	s.logger.Info("organization created",
		"actor_id", actor.String(),
		"organization_id", o.ID().String(),
		"slug", o.Slug(),
	)
	return o, nil
}

// GetOrganization retrieves an organization.
func (s *OrganizationService) GetOrganization(ctx context.Context, id string) (*organization.Organization, error) {
	orgID, err := parseID(id, "organization id")
	if err != nil {
		return nil, err
	}
	return s.orgs.GetByID(ctx, orgID)
}

// TransferOwnershipInput represents the input for an ownership transfer.
type TransferOwnershipInput struct {
	NewOwnerID string `json:"new_owner_id" validate:"required,uuid"`
}

// TransferOwnership hands an organization to another user. Only the
// current owner may do this.
func (s *OrganizationService) TransferOwnership(ctx context.Context, id string, input TransferOwnershipInput, actor shared.ID) (*organization.Organization, error) {
	o, err := s.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	newOwner, err := parseID(input.NewOwnerID, "new owner id")
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, newOwner); err != nil {
		return nil, err
	}

	previous := o.OwnerUserID()
	if err := o.TransferOwnership(actor, newOwner); err != nil {
		return nil, err
	}
	if err := s.orgs.UpdateOwner(ctx, o); err != nil {
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, previous, newOwner)
	s.cache.InvalidateCatalog(ctx)

	s.logger.Info("organization ownership transferred",
		"actor_id", actor.String(),
		"organization_id", o.ID().String(),
		"previous_owner_id", previous.String(),
		"new_owner_id", newOwner.String(),
	)
	return o, nil
}
