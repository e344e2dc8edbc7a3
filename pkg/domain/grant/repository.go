package grant

import (
	"context"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Repository defines persistence for system role assignments and direct grants.
// Every write is its own unit of work, which lets bulk operations fail per pair.
type Repository interface {
	// === System role assignments ===

	// AssignSystemRole inserts the assignment, or revives the stale row for
	// the same (user, role) pair. Returns ErrAssignmentExists while an
	// effective assignment is present. On revival the assignment adopts the
	// existing row ID.
	AssignSystemRole(ctx context.Context, a *SystemRoleAssignment) error

	// RevokeSystemRole soft-revokes the active assignment.
	// Returns ErrAssignmentNotFound if none is active.
	RevokeSystemRole(ctx context.Context, userID, roleID shared.ID, revokedBy *shared.ID, at time.Time) error

	// ListSystemRoleAssignments returns a user's assignments, active and historical.
	ListSystemRoleAssignments(ctx context.Context, userID shared.ID) ([]*SystemRoleAssignment, error)

	// === Direct grants ===

	// GrantPermission inserts the grant, or revives the stale row for the same
	// (user, permission) pair. Returns ErrGrantExists while an effective grant is present.
	GrantPermission(ctx context.Context, g *DirectGrant) error

	// RevokePermission soft-revokes the active grant of a permission.
	// Returns ErrGrantNotFound if none is active.
	RevokePermission(ctx context.Context, userID, permissionID shared.ID, revokedBy *shared.ID, at time.Time) error

	// ListDirectGrants returns a user's direct grants, active and historical.
	ListDirectGrants(ctx context.Context, userID shared.ID) ([]*DirectGrant, error)
}
