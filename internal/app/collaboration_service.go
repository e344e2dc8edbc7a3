package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
)

// CollaborationService manages external collaborators of organizations:
// invitation, response, role and permission bundle, and removal.
type CollaborationService struct {
	collabs  collaboration.Repository
	users    user.Repository
	orgs     organization.Repository
	roles    role.Repository
	perms    permission.Repository
	authz    *AuthorizationService
	cache    *DecisionCache
	notifier Notifier
	baseURL  string
	now      Clock
	logger   *logger.Logger
}

// CollaborationServiceOption is a functional option for CollaborationService.
type CollaborationServiceOption func(*CollaborationService)

// WithCollaborationDecisionCache sets the cache invalidated on collaboration changes.
func WithCollaborationDecisionCache(cache *DecisionCache) CollaborationServiceOption {
	return func(s *CollaborationService) {
		s.cache = cache
	}
}

// WithCollaborationNotifier sets the notifier that delivers invitations.
func WithCollaborationNotifier(n Notifier) CollaborationServiceOption {
	return func(s *CollaborationService) {
		s.notifier = n
	}
}

// WithCollaborationBaseURL sets the frontend URL used in invitation links.
func WithCollaborationBaseURL(baseURL string) CollaborationServiceOption {
	return func(s *CollaborationService) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCollaborationClock sets the clock used for invitation deadlines.
func WithCollaborationClock(clock Clock) CollaborationServiceOption {
	return func(s *CollaborationService) {
		s.now = clock
	}
}

// NewCollaborationService creates a new CollaborationService.
func NewCollaborationService(
	collabs collaboration.Repository,
	users user.Repository,
	orgs organization.Repository,
	roles role.Repository,
	perms permission.Repository,
	authz *AuthorizationService,
	log *logger.Logger,
	opts ...CollaborationServiceOption,
) *CollaborationService {
	s := &CollaborationService{
		collabs:  collabs,
		users:    users,
		orgs:     orgs,
		roles:    roles,
		perms:    perms,
		authz:    authz,
		notifier: NopNotifier{},
		now:      systemClock,
		logger:   log.With("service", "collaboration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// INVITATION
// =============================================================================

// InviteInput represents the input for inviting a collaborator.
type InviteInput struct {
	OrganizationID string     `json:"-"`
	Email          string     `json:"email" validate:"required,email,max=254"`
	Name           string     `json:"name" validate:"max=255"`
	RoleID         *string    `json:"role_id" validate:"omitempty,uuid"`
	PermissionIDs  []string   `json:"permission_ids" validate:"omitempty,dive,uuid"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Message        string     `json:"message" validate:"max=1000"`
}

// Invite creates a pending collaboration for the email, creating a
// placeholder user when none exists. A removed collaboration of the same
// pair is revived with the new bundle; a live one is a conflict. The role
// and direct grants are written in the same transaction as the row.
func (s *CollaborationService) Invite(ctx context.Context, input InviteInput, actor shared.ID) (*collaboration.Collaboration, error) {
	orgID, err := parseID(input.OrganizationID, "organization id")
	if err != nil {
		return nil, err
	}
	roleID, err := parseOptionalID(input.RoleID, "role id")
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs(input.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// Validate the bundle before any row is written.
	if roleID != nil {
		if _, err := s.organizationRole(ctx, orgID, *roleID); err != nil {
			return nil, err
		}
	}
	perms, err := s.organizationPermissions(ctx, orgID, permIDs)
	if err != nil {
		return nil, err
	}

	invitee, _, err := findOrCreatePlaceholder(ctx, s.users, s.logger, input.Email, input.Name)
	if err != nil {
		return nil, err
	}
	if org.IsOwner(invitee.ID()) {
		return nil, fmt.Errorf("%w: the owner cannot be invited to their own organization", shared.ErrValidation)
	}

	at := s.now()
	c, err := s.collabs.GetByPair(ctx, invitee.ID(), orgID)
	switch {
	case err == nil:
		if c.IsActive() {
			return nil, collaboration.ErrCollaborationExists
		}
		if err := c.Revive(actor, input.ExpiresAt, at); err != nil {
			return nil, err
		}
		changes, err := s.bundle(c, invitee.ID(), orgID, roleID, perms, actor, at, true)
		if err != nil {
			return nil, err
		}
		if err := s.collabs.Revive(ctx, c, changes); err != nil {
			return nil, err
		}
		s.logger.Info("collaboration revived",
			"actor_id", actor.String(),
			"collaboration_id", c.ID().String(),
			"user_id", invitee.ID().String(),
			"organization_id", orgID.String(),
		)

	case errors.Is(err, collaboration.ErrCollaborationNotFound):
		c, err = collaboration.New(orgID, invitee.ID(), invitee.Email(), actor, input.ExpiresAt, at)
		if err != nil {
			return nil, err
		}
		changes, err := s.bundle(c, invitee.ID(), orgID, roleID, perms, actor, at, false)
		if err != nil {
			return nil, err
		}
		if err := s.collabs.Create(ctx, c, changes); err != nil {
			return nil, err
		}
		s.logger.Info("collaboration created",
			"actor_id", actor.String(),
			"collaboration_id", c.ID().String(),
			"user_id", invitee.ID().String(),
			"organization_id", orgID.String(),
		)

	default:
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, invitee.ID())

	dispatch(ctx, s.notifier, s.logger, Notification{
		UserID:    invitee.ID(),
		UserEmail: invitee.Email(),
		Feature:   "collaboration",
		Message:   input.Message,
		Type:      NotificationCollaborationInvite,
		Params:    s.inviteParams(c, org, invitee),
	})
	return c, nil
}

func (s *CollaborationService) inviteParams(c *collaboration.Collaboration, org *organization.Organization, invitee *user.User) map[string]string {
	params := map[string]string{
		"organization_name": org.Name(),
		"user_name":         invitee.Name(),
		"collaboration_id":  c.ID().String(),
	}
	if s.baseURL != "" {
		params["accept_url"] = s.baseURL + "/invitations/" + c.ID().String()
	}
	if exp := c.ExpiresAt(); exp != nil {
		params["expires_at"] = exp.Format(time.RFC1123)
	}
	return params
}

// bundle builds the grant changes of an invitation. A fresh invitation
// only adds its grants, leaving what the invitee already holds in the
// organization alone. A revived one replaces the direct grants so the row
// carries exactly the new bundle.
func (s *CollaborationService) bundle(
	c *collaboration.Collaboration,
	collaboratorID, orgID shared.ID,
	roleID *shared.ID,
	perms []*permission.Permission,
	actor shared.ID,
	at time.Time,
	replace bool,
) (collaboration.GrantChanges, error) {
	changes := collaboration.GrantChanges{
		ReplaceRole:         true,
		ReplaceDirectGrants: replace,
		Actor:               actorRef(actor),
	}
	if roleID != nil {
		changes.Role = grant.NewRoleAttachment(c.ID(), *roleID, actorRef(actor), at)
	}
	for _, p := range perms {
		g, err := grant.NewDirectGrant(collaboratorID, p, &orgID, actorRef(actor), nil, at)
		if err != nil {
			return collaboration.GrantChanges{}, err
		}
		changes.DirectGrants = append(changes.DirectGrants, g)
	}
	return changes, nil
}

// organizationRole loads an active role owned by the organization.
func (s *CollaborationService) organizationRole(ctx context.Context, orgID, roleID shared.ID) (*role.Role, error) {
	r, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !r.BelongsTo(orgID) {
		return nil, fmt.Errorf("%w: role %s does not belong to the organization", shared.ErrValidation, r.Type())
	}
	if !r.IsActive() {
		return nil, fmt.Errorf("%w: role %s is inactive", shared.ErrValidation, r.Type())
	}
	return r, nil
}

// organizationPermissions loads permissions and checks they are all owned
// by the organization.
func (s *CollaborationService) organizationPermissions(ctx context.Context, orgID shared.ID, ids []shared.ID) ([]*permission.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	perms, err := s.perms.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return nil, role.ErrUnknownPermission
	}
	for _, p := range perms {
		if !p.BelongsTo(orgID) {
			return nil, fmt.Errorf("%w: permission %s does not belong to the organization", permission.ErrScopeMismatch, p.Type())
		}
	}
	return perms, nil
}

// =============================================================================
// RESPONSE
// =============================================================================

// Accept marks an invitation accepted. Only the invited user may accept,
// and only before the deadline.
func (s *CollaborationService) Accept(ctx context.Context, id string, userID shared.ID) (*collaboration.Collaboration, error) {
	return s.respond(ctx, id, userID, "accepted", (*collaboration.Collaboration).Accept, collaboration.GrantChanges{})
}

// Reject declines an invitation with the same checks as Accept. The
// direct grants issued with the invitation are revoked with it; grants
// the user held before the invitation stay.
func (s *CollaborationService) Reject(ctx context.Context, id string, userID shared.ID) (*collaboration.Collaboration, error) {
	changes := collaboration.GrantChanges{RevokeIssuedGrants: true, Actor: actorRef(userID)}
	return s.respond(ctx, id, userID, "rejected", (*collaboration.Collaboration).Reject, changes)
}

func (s *CollaborationService) respond(
	ctx context.Context,
	id string,
	userID shared.ID,
	verb string,
	apply func(*collaboration.Collaboration, shared.ID, time.Time) error,
	changes collaboration.GrantChanges,
) (*collaboration.Collaboration, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, userID, s.now()); err != nil {
		return nil, err
	}
	if err := s.collabs.Update(ctx, c, changes); err != nil {
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, c.CollaboratorID())

	s.logger.Info("collaboration "+verb,
		"actor_id", userID.String(),
		"collaboration_id", c.ID().String(),
		"organization_id", c.OrganizationID().String(),
	)
	return c, nil
}

// =============================================================================
// MANAGEMENT
// =============================================================================

// UpdateCollaborationInput represents the input for updating a collaboration.
// A non-nil RoleID replaces the role attachment (empty string detaches it);
// a non-nil PermissionIDs replaces the collaborator's direct grants within
// the organization.
type UpdateCollaborationInput struct {
	IsActive      *bool     `json:"is_active"`
	RoleID        *string   `json:"role_id" validate:"omitempty,uuid"`
	PermissionIDs *[]string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

// Update changes the state or bundle of a collaboration. The actor needs
// collaborator_manage on the collaboration's organization.
func (s *CollaborationService) Update(ctx context.Context, id string, input UpdateCollaborationInput, actor shared.ID) (*collaboration.Collaboration, error) {
	c, err := s.getManaged(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	orgID := c.OrganizationID()
	at := s.now()

	changes := collaboration.GrantChanges{Actor: actorRef(actor)}
	if input.RoleID != nil {
		changes.ReplaceRole = true
		if *input.RoleID != "" {
			roleID, err := parseID(*input.RoleID, "role id")
			if err != nil {
				return nil, err
			}
			if _, err := s.organizationRole(ctx, orgID, roleID); err != nil {
				return nil, err
			}
			changes.Role = grant.NewRoleAttachment(c.ID(), roleID, actorRef(actor), at)
		}
	}
	if input.PermissionIDs != nil {
		permIDs, err := parseIDs(*input.PermissionIDs, "permission id")
		if err != nil {
			return nil, err
		}
		perms, err := s.organizationPermissions(ctx, orgID, permIDs)
		if err != nil {
			return nil, err
		}
		changes.ReplaceDirectGrants = true
		for _, p := range perms {
			g, err := grant.NewDirectGrant(c.CollaboratorID(), p, &orgID, actorRef(actor), nil, at)
			if err != nil {
				return nil, err
			}
			changes.DirectGrants = append(changes.DirectGrants, g)
		}
	}

	active := c.IsActive()
	if input.IsActive != nil {
		active = *input.IsActive
	}
	if c.IsActive() && !active {
		// Deactivation ends the collaborator's authority in the organization
		// the same way Remove does.
		changes.ReplaceDirectGrants = true
		changes.DirectGrants = nil
	}
	c.SetActive(active, at)

	if err := s.collabs.Update(ctx, c, changes); err != nil {
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, c.CollaboratorID())

	s.logger.Info("collaboration updated",
		"actor_id", actor.String(),
		"collaboration_id", c.ID().String(),
		"user_id", c.CollaboratorID().String(),
		"organization_id", orgID.String(),
		"role_replaced", changes.ReplaceRole,
		"grants_replaced", changes.ReplaceDirectGrants,
		"is_active", c.IsActive(),
	)
	return c, nil
}

// Remove soft-deactivates a collaboration and revokes the collaborator's
// direct grants within the organization. Role attachment rows are kept
// for history. Removing an already removed collaboration is a no-op.
func (s *CollaborationService) Remove(ctx context.Context, id string, actor shared.ID) error {
	c, err := s.getManaged(ctx, id, actor)
	if err != nil {
		return err
	}
	if !c.IsActive() {
		return nil
	}

	c.SetActive(false, s.now())
	changes := collaboration.GrantChanges{ReplaceDirectGrants: true, Actor: actorRef(actor)}
	if err := s.collabs.Update(ctx, c, changes); err != nil {
		return err
	}
	s.cache.InvalidateUsers(ctx, c.CollaboratorID())

	s.logger.Info("collaboration removed",
		"actor_id", actor.String(),
		"collaboration_id", c.ID().String(),
		"user_id", c.CollaboratorID().String(),
		"organization_id", c.OrganizationID().String(),
	)
	return nil
}

// ListCollaborationsInput represents the filters of a collaboration listing.
type ListCollaborationsInput struct {
	Status   string `validate:"omitempty,collaboration_status"`
	IsActive *bool
	Search   string `validate:"max=255"`
	RoleID   string `validate:"omitempty,uuid"`
	Sort     string
}

// List lists an organization's collaborations. The actor needs
// collaborator_manage on the organization.
func (s *CollaborationService) List(ctx context.Context, organizationID string, input ListCollaborationsInput, page pagination.Pagination, actor shared.ID) (pagination.Result[*collaboration.Collaboration], error) {
	orgID, err := parseID(organizationID, "organization id")
	if err != nil {
		return pagination.Result[*collaboration.Collaboration]{}, err
	}
	if err := s.authz.RequireOrganizationPermission(ctx, actor, orgID, permission.CollaboratorManage); err != nil {
		return pagination.Result[*collaboration.Collaboration]{}, err
	}

	filter := collaboration.Filter{
		IsActive: input.IsActive,
		Search:   strings.TrimSpace(input.Search),
		Sort:     input.Sort,
	}
	if input.Status != "" {
		st, err := collaboration.ParseStatus(input.Status)
		if err != nil {
			return pagination.Result[*collaboration.Collaboration]{}, err
		}
		filter.Status = &st
	}
	if input.RoleID != "" {
		roleID, err := parseID(input.RoleID, "role id")
		if err != nil {
			return pagination.Result[*collaboration.Collaboration]{}, err
		}
		filter.RoleID = &roleID
	}

	return s.collabs.List(ctx, orgID, filter, page)
}

// RoleAttachments returns the role history of a collaboration. The actor
// needs collaborator_manage on its organization.
func (s *CollaborationService) RoleAttachments(ctx context.Context, id string, actor shared.ID) ([]*grant.RoleAttachment, error) {
	c, err := s.getManaged(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.collabs.ListRoleAttachments(ctx, c.ID())
}

func (s *CollaborationService) get(ctx context.Context, id string) (*collaboration.Collaboration, error) {
	collabID, err := parseID(id, "collaboration id")
	if err != nil {
		return nil, err
	}
	return s.collabs.GetByID(ctx, collabID)
}

// getManaged loads a collaboration and checks the actor may manage it.
func (s *CollaborationService) getManaged(ctx context.Context, id string, actor shared.ID) (*collaboration.Collaboration, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireOrganizationPermission(ctx, actor, c.OrganizationID(), permission.CollaboratorManage); err != nil {
		return nil, err
	}
	return c, nil
}
