package app

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/authz/internal/metrics"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/logger"
)

// Bulk operation names used in logs and metrics.
const (
	bulkOpRoles       = "assign_roles"
	bulkOpPermissions = "assign_permissions"
)

// GrantService writes the authority ledger: system role assignments and
// direct permission grants. Every write is its own unit of work.
type GrantService struct {
	grants   grant.Repository
	roles    role.Repository
	perms    permission.Repository
	users    user.Repository
	cache    *DecisionCache
	notifier Notifier
	now      Clock
	logger   *logger.Logger
}

// GrantServiceOption is a functional option for GrantService.
type GrantServiceOption func(*GrantService)

// WithGrantDecisionCache sets the cache invalidated on every grant change.
func WithGrantDecisionCache(cache *DecisionCache) GrantServiceOption {
	return func(s *GrantService) {
		s.cache = cache
	}
}

// WithGrantNotifier sets the notifier told about access changes.
func WithGrantNotifier(n Notifier) GrantServiceOption {
	return func(s *GrantService) {
		s.notifier = n
	}
}

// WithGrantClock sets the clock used to stamp and validate grants.
func WithGrantClock(clock Clock) GrantServiceOption {
	return func(s *GrantService) {
		s.now = clock
	}
}

// NewGrantService creates a new GrantService.
func NewGrantService(
	grants grant.Repository,
	roles role.Repository,
	perms permission.Repository,
	users user.Repository,
	log *logger.Logger,
	opts ...GrantServiceOption,
) *GrantService {
	s := &GrantService{
		grants:   grants,
		roles:    roles,
		perms:    perms,
		users:    users,
		notifier: NopNotifier{},
		now:      systemClock,
		logger:   log.With("service", "grant"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SYSTEM ROLE ASSIGNMENTS
// =============================================================================

// AssignSystemRoleInput represents the input for assigning a system role.
type AssignSystemRoleInput struct {
	UserID    string     `json:"-"`
	RoleID    string     `json:"role_id" validate:"required,uuid"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AssignSystemRole grants a system role to a user. A stale assignment of
// the same pair is revived; an effective one is a conflict.
func (s *GrantService) AssignSystemRole(ctx context.Context, input AssignSystemRoleInput, actor shared.ID) (*grant.SystemRoleAssignment, error) {
	userID, err := parseID(input.UserID, "user id")
	if err != nil {
		return nil, err
	}
	roleID, err := parseID(input.RoleID, "role id")
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r, err := s.systemRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	a, err := s.assignSystemRole(ctx, userID, r, input.ExpiresAt, actor)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, userID)

	dispatch(ctx, s.notifier, s.logger, Notification{
		UserID:    userID,
		UserEmail: u.Email(),
		Feature:   "roles",
		Message:   fmt.Sprintf("You have been granted the %s role.", r.Name()),
		Type:      NotificationAccessChanged,
	})
	return a, nil
}

func (s *GrantService) systemRole(ctx context.Context, roleID shared.ID) (*role.Role, error) {
	r, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !r.IsSystem() {
		return nil, fmt.Errorf("%w: role %s is not a system role", shared.ErrValidation, r.Type())
	}
	return r, nil
}

func (s *GrantService) assignSystemRole(ctx context.Context, userID shared.ID, r *role.Role, expiresAt *time.Time, actor shared.ID) (*grant.SystemRoleAssignment, error) {
	a, err := grant.NewSystemRoleAssignment(userID, r.ID(), actorRef(actor), expiresAt, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.grants.AssignSystemRole(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("system role assigned",
		"actor_id", actor.String(),
		"user_id", userID.String(),
		"role_id", r.ID().String(),
		"assignment_id", a.ID().String(),
	)
	return a, nil
}

// RevokeSystemRole soft-revokes a user's active assignment of a role.
func (s *GrantService) RevokeSystemRole(ctx context.Context, userID, roleID string, actor shared.ID) error {
	uid, err := parseID(userID, "user id")
	if err != nil {
		return err
	}
	rid, err := parseID(roleID, "role id")
	if err != nil {
		return err
	}

	if err := s.grants.RevokeSystemRole(ctx, uid, rid, actorRef(actor), s.now()); err != nil {
		return err
	}
	s.cache.InvalidateUsers(ctx, uid)

	s.logger.Info("system role revoked",
		"actor_id", actor.String(),
		"user_id", uid.String(),
		"role_id", rid.String(),
	)
	return nil
}

// =============================================================================
// DIRECT PERMISSION GRANTS
// =============================================================================

// GrantPermissionInput represents the input for a direct grant. The
// organization is required for organization permissions and forbidden
// for system permissions.
type GrantPermissionInput struct {
	UserID         string     `json:"-"`
	PermissionID   string     `json:"permission_id" validate:"required,uuid"`
	OrganizationID *string    `json:"organization_id" validate:"omitempty,uuid"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// GrantPermission attaches a permission to a user without a role.
func (s *GrantService) GrantPermission(ctx context.Context, input GrantPermissionInput, actor shared.ID) (*grant.DirectGrant, error) {
	userID, err := parseID(input.UserID, "user id")
	if err != nil {
		return nil, err
	}
	permID, err := parseID(input.PermissionID, "permission id")
	if err != nil {
		return nil, err
	}
	orgID, err := parseOptionalID(input.OrganizationID, "organization id")
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.perms.GetByID(ctx, permID)
	if err != nil {
		return nil, err
	}

	g, err := s.grantPermission(ctx, userID, p, orgID, input.ExpiresAt, actor)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, userID)

	dispatch(ctx, s.notifier, s.logger, Notification{
		UserID:    userID,
		UserEmail: u.Email(),
		Feature:   "permissions",
		Message:   fmt.Sprintf("You have been granted the %s permission.", p.Name()),
		Type:      NotificationAccessChanged,
	})
	return g, nil
}

func (s *GrantService) grantPermission(ctx context.Context, userID shared.ID, p *permission.Permission, orgID *shared.ID, expiresAt *time.Time, actor shared.ID) (*grant.DirectGrant, error) {
	g, err := grant.NewDirectGrant(userID, p, orgID, actorRef(actor), expiresAt, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.grants.GrantPermission(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Info("permission granted",
		"actor_id", actor.String(),
		"user_id", userID.String(),
		"permission_id", p.ID().String(),
		"organization_id", nullableString(orgID),
		"grant_id", g.ID().String(),
	)
	return g, nil
}

// RevokePermission soft-revokes a user's active direct grant. When an
// organization is given the permission must belong to it.
func (s *GrantService) RevokePermission(ctx context.Context, userID, permissionID string, organizationID *string, actor shared.ID) error {
	uid, err := parseID(userID, "user id")
	if err != nil {
		return err
	}
	pid, err := parseID(permissionID, "permission id")
	if err != nil {
		return err
	}
	orgID, err := parseOptionalID(organizationID, "organization id")
	if err != nil {
		return err
	}

	if orgID != nil {
		p, err := s.perms.GetByID(ctx, pid)
		if err != nil {
			return err
		}
		if !p.BelongsTo(*orgID) {
			return permission.ErrPermissionNotFound
		}
	}

	if err := s.grants.RevokePermission(ctx, uid, pid, actorRef(actor), s.now()); err != nil {
		return err
	}
	s.cache.InvalidateUsers(ctx, uid)

	s.logger.Info("permission revoked",
		"actor_id", actor.String(),
		"user_id", uid.String(),
		"permission_id", pid.String(),
		"organization_id", nullableString(orgID),
	)
	return nil
}

// UserGrants is a user's full ledger, active and historical.
type UserGrants struct {
	SystemRoles  []*grant.SystemRoleAssignment
	DirectGrants []*grant.DirectGrant
}

// ListUserGrants returns every system role assignment and direct grant of a user.
func (s *GrantService) ListUserGrants(ctx context.Context, userID string) (*UserGrants, error) {
	uid, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, uid); err != nil {
		return nil, err
	}

	assignments, err := s.grants.ListSystemRoleAssignments(ctx, uid)
	if err != nil {
		return nil, err
	}
	direct, err := s.grants.ListDirectGrants(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &UserGrants{SystemRoles: assignments, DirectGrants: direct}, nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// BulkFailure is one skipped pair of a bulk operation.
type BulkFailure struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// BulkResult reports a best-effort bulk operation. Failed pairs are
// listed, never fatal.
type BulkResult[T any] struct {
	SuccessCount int
	Succeeded    []T
	Failures     []BulkFailure
}

func (r *BulkResult[T]) succeed(item T) {
	r.SuccessCount++
	r.Succeeded = append(r.Succeeded, item)
}

func (r *BulkResult[T]) fail(userID, targetID string, err error) {
	r.Failures = append(r.Failures, BulkFailure{UserID: userID, TargetID: targetID, Reason: err.Error()})
}

// BulkAssignRolesInput represents the input for bulk system role assignment.
type BulkAssignRolesInput struct {
	UserIDs   []string   `json:"user_ids" validate:"required,min=1,max=500,dive,uuid"`
	RoleIDs   []string   `json:"role_ids" validate:"required,min=1,max=50,dive,uuid"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// BulkAssignRoles assigns every role to every user. Each pair is its own
// unit of work; a failing pair is logged, reported and skipped.
func (s *GrantService) BulkAssignRoles(ctx context.Context, input BulkAssignRolesInput, actor shared.ID) (*BulkResult[*grant.SystemRoleAssignment], error) {
	userIDs, err := parseIDs(input.UserIDs, "user id")
	if err != nil {
		return nil, err
	}
	roleIDs, err := parseIDs(input.RoleIDs, "role id")
	if err != nil {
		return nil, err
	}

	s.logger.Info("bulk assigning system roles",
		"actor_id", actor.String(),
		"user_count", len(userIDs),
		"role_count", len(roleIDs),
	)

	// A role that cannot be resolved fails all of its pairs.
	roles := make(map[shared.ID]*role.Role, len(roleIDs))
	roleErrs := make(map[shared.ID]error)
	for _, id := range roleIDs {
		r, err := s.systemRole(ctx, id)
		if err != nil {
			roleErrs[id] = err
			continue
		}
		roles[id] = r
	}

	known, err := s.knownUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	result := &BulkResult[*grant.SystemRoleAssignment]{}
	affected := make([]shared.ID, 0, len(userIDs))
	for _, uid := range userIDs {
		for _, rid := range roleIDs {
			var a *grant.SystemRoleAssignment
			err := roleErrs[rid]
			if !known[uid] {
				err = user.ErrUserNotFound
			}
			if err == nil {
				a, err = s.assignSystemRole(ctx, uid, roles[rid], input.ExpiresAt, actor)
			}
			metrics.RecordBulkPair(bulkOpRoles, err == nil)
			if err != nil {
				s.logger.Warn("skipping bulk role pair",
					"actor_id", actor.String(),
					"user_id", uid.String(),
					"role_id", rid.String(),
					"error", err,
				)
				result.fail(uid.String(), rid.String(), err)
				continue
			}
			result.succeed(a)
			affected = append(affected, uid)
		}
	}
	s.cache.InvalidateUsers(ctx, affected...)

	s.logger.Info("bulk system role assignment completed",
		"actor_id", actor.String(),
		"success_count", result.SuccessCount,
		"failed_count", len(result.Failures),
	)
	return result, nil
}

// BulkAssignPermissionsInput represents the input for bulk direct grants
// of one organization's permissions.
type BulkAssignPermissionsInput struct {
	OrganizationID string     `json:"-"`
	UserIDs        []string   `json:"user_ids" validate:"required,min=1,max=500,dive,uuid"`
	PermissionIDs  []string   `json:"permission_ids" validate:"required,min=1,max=100,dive,uuid"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// BulkAssignPermissions grants every permission to every user within an
// organization, with the same best-effort semantics as BulkAssignRoles.
func (s *GrantService) BulkAssignPermissions(ctx context.Context, input BulkAssignPermissionsInput, actor shared.ID) (*BulkResult[*grant.DirectGrant], error) {
	orgID, err := parseID(input.OrganizationID, "organization id")
	if err != nil {
		return nil, err
	}
	userIDs, err := parseIDs(input.UserIDs, "user id")
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs(input.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	s.logger.Info("bulk granting permissions",
		"actor_id", actor.String(),
		"organization_id", orgID.String(),
		"user_count", len(userIDs),
		"permission_count", len(permIDs),
	)

	perms, err := s.perms.GetByIDs(ctx, permIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	byID := make(map[shared.ID]*permission.Permission, len(perms))
	for _, p := range perms {
		byID[p.ID()] = p
	}

	known, err := s.knownUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	result := &BulkResult[*grant.DirectGrant]{}
	affected := make([]shared.ID, 0, len(userIDs))
	for _, uid := range userIDs {
		for _, pid := range permIDs {
			var g *grant.DirectGrant
			p, ok := byID[pid]
			err := error(permission.ErrPermissionNotFound)
			if !known[uid] {
				err, ok = user.ErrUserNotFound, false
			}
			if ok {
				g, err = s.grantPermission(ctx, uid, p, &orgID, input.ExpiresAt, actor)
			}
			metrics.RecordBulkPair(bulkOpPermissions, err == nil)
			if err != nil {
				s.logger.Warn("skipping bulk permission pair",
					"actor_id", actor.String(),
					"user_id", uid.String(),
					"permission_id", pid.String(),
					"organization_id", orgID.String(),
					"error", err,
				)
				result.fail(uid.String(), pid.String(), err)
				continue
			}
			result.succeed(g)
			affected = append(affected, uid)
		}
	}
	s.cache.InvalidateUsers(ctx, affected...)

	s.logger.Info("bulk permission grant completed",
		"actor_id", actor.String(),
		"organization_id", orgID.String(),
		"success_count", result.SuccessCount,
		"failed_count", len(result.Failures),
	)
	return result, nil
}

// knownUsers returns the subset of ids that exist.
func (s *GrantService) knownUsers(ctx context.Context, ids []shared.ID) (map[shared.ID]bool, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	known := make(map[shared.ID]bool, len(users))
	for _, u := range users {
		known[u.ID()] = true
	}
	return known, nil
}

func nullableString(id *shared.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
