// Package grant models the authority ledger: system role assignments,
// organization role attachments and direct permission grants.
//
// Rows are never deleted. Revocation flips is_active and stamps
// revoked_at, so the full history stays queryable.
package grant

import (
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Effective reports whether an active flag and an optional expiry
// still authorize at the given instant.
func Effective(isActive bool, expiresAt *time.Time, at time.Time) bool {
	if !isActive {
		return false
	}
	return expiresAt == nil || expiresAt.After(at)
}

func validateExpiry(expiresAt *time.Time, at time.Time) error {
	if expiresAt != nil && !expiresAt.After(at) {
		return fmt.Errorf("%w: expires_at must be in the future", shared.ErrValidation)
	}
	return nil
}

// =============================================================================
// System role assignment (user <-> system role)
// =============================================================================

// SystemRoleAssignment grants a system role to a user.
type SystemRoleAssignment struct {
	id         shared.ID
	userID     shared.ID
	roleID     shared.ID
	assignedBy *shared.ID
	assignedAt time.Time
	expiresAt  *time.Time
	isActive   bool
	revokedBy  *shared.ID
	revokedAt  *time.Time
}

// NewSystemRoleAssignment creates an active assignment.
func NewSystemRoleAssignment(userID, roleID shared.ID, assignedBy *shared.ID, expiresAt *time.Time, at time.Time) (*SystemRoleAssignment, error) {
	if userID.IsZero() || roleID.IsZero() {
		return nil, fmt.Errorf("%w: user id and role id are required", shared.ErrValidation)
	}
	if err := validateExpiry(expiresAt, at); err != nil {
		return nil, err
	}
	return &SystemRoleAssignment{
		id:         shared.NewID(),
		userID:     userID,
		roleID:     roleID,
		assignedBy: assignedBy,
		assignedAt: at,
		expiresAt:  expiresAt,
		isActive:   true,
	}, nil
}

// ReconstituteSystemRoleAssignment rebuilds an assignment from persistence.
func ReconstituteSystemRoleAssignment(
	id, userID, roleID shared.ID,
	assignedBy *shared.ID,
	assignedAt time.Time,
	expiresAt *time.Time,
	isActive bool,
	revokedBy *shared.ID,
	revokedAt *time.Time,
) *SystemRoleAssignment {
	return &SystemRoleAssignment{
		id:         id,
		userID:     userID,
		roleID:     roleID,
		assignedBy: assignedBy,
		assignedAt: assignedAt,
		expiresAt:  expiresAt,
		isActive:   isActive,
		revokedBy:  revokedBy,
		revokedAt:  revokedAt,
	}
}

func (a *SystemRoleAssignment) ID() shared.ID          { return a.id }
func (a *SystemRoleAssignment) UserID() shared.ID      { return a.userID }
func (a *SystemRoleAssignment) RoleID() shared.ID      { return a.roleID }
func (a *SystemRoleAssignment) AssignedBy() *shared.ID { return a.assignedBy }
func (a *SystemRoleAssignment) AssignedAt() time.Time  { return a.assignedAt }
func (a *SystemRoleAssignment) ExpiresAt() *time.Time  { return a.expiresAt }
func (a *SystemRoleAssignment) IsActive() bool         { return a.isActive }
func (a *SystemRoleAssignment) RevokedBy() *shared.ID  { return a.revokedBy }
func (a *SystemRoleAssignment) RevokedAt() *time.Time  { return a.revokedAt }

// IsEffective reports whether the assignment authorizes at the given instant.
func (a *SystemRoleAssignment) IsEffective(at time.Time) bool {
	return Effective(a.isActive, a.expiresAt, at)
}

// SetID adopts the identity of an existing row when the store revives it.
func (a *SystemRoleAssignment) SetID(id shared.ID) { a.id = id }

// =============================================================================
// Direct permission grant (user <-> permission)
// =============================================================================

// DirectGrant attaches one permission to a user without a role. It
// references exactly one of a system or an organization permission.
type DirectGrant struct {
	id                       shared.ID
	userID                   shared.ID
	systemPermissionID       *shared.ID
	organizationPermissionID *shared.ID
	organizationID           *shared.ID
	grantedBy                *shared.ID
	grantedAt                time.Time
	expiresAt                *time.Time
	isActive                 bool
	revokedBy                *shared.ID
	revokedAt                *time.Time
}

// NewDirectGrant creates an active grant for the given permission. The
// organization must be nil for system permissions and must match the
// owning organization for organization permissions.
func NewDirectGrant(userID shared.ID, perm *permission.Permission, organizationID *shared.ID, grantedBy *shared.ID, expiresAt *time.Time, at time.Time) (*DirectGrant, error) {
	if userID.IsZero() || perm == nil {
		return nil, fmt.Errorf("%w: user and permission are required", shared.ErrValidation)
	}
	if err := validateExpiry(expiresAt, at); err != nil {
		return nil, err
	}

	g := &DirectGrant{
		id:        shared.NewID(),
		userID:    userID,
		grantedBy: grantedBy,
		grantedAt: at,
		expiresAt: expiresAt,
		isActive:  true,
	}

	permID := perm.ID()
	switch perm.Scope() {
	case permission.ScopeSystem:
		if organizationID != nil {
			return nil, fmt.Errorf("%w: system permission %s cannot be bound to an organization", permission.ErrScopeMismatch, perm.Type())
		}
		g.systemPermissionID = &permID
	case permission.ScopeOrganization:
		if organizationID == nil || !perm.BelongsTo(*organizationID) {
			return nil, fmt.Errorf("%w: permission %s does not belong to the organization", permission.ErrScopeMismatch, perm.Type())
		}
		org := *organizationID
		g.organizationPermissionID = &permID
		g.organizationID = &org
	default:
		return nil, fmt.Errorf("%w: unknown permission scope %q", shared.ErrValidation, perm.Scope())
	}
	return g, nil
}

// ReconstituteDirectGrant rebuilds a grant from persistence.
func ReconstituteDirectGrant(
	id, userID shared.ID,
	systemPermissionID, organizationPermissionID, organizationID *shared.ID,
	grantedBy *shared.ID,
	grantedAt time.Time,
	expiresAt *time.Time,
	isActive bool,
	revokedBy *shared.ID,
	revokedAt *time.Time,
) *DirectGrant {
	return &DirectGrant{
		id:                       id,
		userID:                   userID,
		systemPermissionID:       systemPermissionID,
		organizationPermissionID: organizationPermissionID,
		organizationID:           organizationID,
		grantedBy:                grantedBy,
		grantedAt:                grantedAt,
		expiresAt:                expiresAt,
		isActive:                 isActive,
		revokedBy:                revokedBy,
		revokedAt:                revokedAt,
	}
}

func (g *DirectGrant) ID() shared.ID                        { return g.id }
func (g *DirectGrant) UserID() shared.ID                    { return g.userID }
func (g *DirectGrant) SystemPermissionID() *shared.ID       { return g.systemPermissionID }
func (g *DirectGrant) OrganizationPermissionID() *shared.ID { return g.organizationPermissionID }
func (g *DirectGrant) OrganizationID() *shared.ID           { return g.organizationID }
func (g *DirectGrant) GrantedBy() *shared.ID                { return g.grantedBy }
func (g *DirectGrant) GrantedAt() time.Time                 { return g.grantedAt }
func (g *DirectGrant) ExpiresAt() *time.Time                { return g.expiresAt }
func (g *DirectGrant) IsActive() bool                       { return g.isActive }
func (g *DirectGrant) RevokedBy() *shared.ID                { return g.revokedBy }
func (g *DirectGrant) RevokedAt() *time.Time                { return g.revokedAt }

// PermissionID returns whichever permission reference is set.
func (g *DirectGrant) PermissionID() shared.ID {
	if g.systemPermissionID != nil {
		return *g.systemPermissionID
	}
	return *g.organizationPermissionID
}

// Scope returns the scope of the referenced permission.
func (g *DirectGrant) Scope() permission.Scope {
	if g.systemPermissionID != nil {
		return permission.ScopeSystem
	}
	return permission.ScopeOrganization
}

// IsEffective reports whether the grant authorizes at the given instant.
func (g *DirectGrant) IsEffective(at time.Time) bool {
	return Effective(g.isActive, g.expiresAt, at)
}

// SetID adopts the identity of an existing row when the store revives it.
func (g *DirectGrant) SetID(id shared.ID) { g.id = id }

// =============================================================================
// Organization role attachment (collaboration <-> organization role)
// =============================================================================

// RoleAttachment binds an organization role to a collaboration.
type RoleAttachment struct {
	id              shared.ID
	collaborationID shared.ID
	roleID          shared.ID
	assignedBy      *shared.ID
	assignedAt      time.Time
	isActive        bool
}

// NewRoleAttachment creates an active attachment.
func NewRoleAttachment(collaborationID, roleID shared.ID, assignedBy *shared.ID, at time.Time) *RoleAttachment {
	return &RoleAttachment{
		id:              shared.NewID(),
		collaborationID: collaborationID,
		roleID:          roleID,
		assignedBy:      assignedBy,
		assignedAt:      at,
		isActive:        true,
	}
}

// ReconstituteRoleAttachment rebuilds an attachment from persistence.
func ReconstituteRoleAttachment(id, collaborationID, roleID shared.ID, assignedBy *shared.ID, assignedAt time.Time, isActive bool) *RoleAttachment {
	return &RoleAttachment{
		id:              id,
		collaborationID: collaborationID,
		roleID:          roleID,
		assignedBy:      assignedBy,
		assignedAt:      assignedAt,
		isActive:        isActive,
	}
}

func (a *RoleAttachment) ID() shared.ID              { return a.id }
func (a *RoleAttachment) CollaborationID() shared.ID { return a.collaborationID }
func (a *RoleAttachment) RoleID() shared.ID          { return a.roleID }
func (a *RoleAttachment) AssignedBy() *shared.ID     { return a.assignedBy }
func (a *RoleAttachment) AssignedAt() time.Time      { return a.assignedAt }
func (a *RoleAttachment) IsActive() bool             { return a.isActive }

// Errors
var (
	ErrAssignmentExists   = fmt.Errorf("%w: user already holds this role", shared.ErrAlreadyExists)
	ErrAssignmentNotFound = fmt.Errorf("%w: active role assignment not found", shared.ErrNotFound)
	ErrGrantExists        = fmt.Errorf("%w: user already holds this permission", shared.ErrAlreadyExists)
	ErrGrantNotFound      = fmt.Errorf("%w: active permission grant not found", shared.ErrNotFound)
)
