package accesscontrol

import (
	"context"
	"time"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// AuthorityReader answers the existence questions the resolver combines.
// Each method is a single read against the authoritative store and returns
// false (never an error) when no authority exists. Implementations must
// honor is_active on every row involved and expires_at where present.
type AuthorityReader interface {
	// HasSystemRolePermission: an effective system role assignment whose
	// active role holds an active permission of the type.
	HasSystemRolePermission(ctx context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error)

	// HasDirectSystemPermission: an effective direct grant of an active
	// system permission of the type.
	HasDirectSystemPermission(ctx context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error)

	// HasOrganizationRolePermission: an active, accepted collaboration of the
	// user with the organization, carrying an active role attachment whose
	// active role holds an active permission of the type.
	HasOrganizationRolePermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type) (bool, error)

	// HasDirectOrganizationPermission: an effective direct grant, bound to the
	// organization, of an active organization permission of the type.
	HasDirectOrganizationPermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type, at time.Time) (bool, error)

	// SystemPermissionSources lists every system permission the user holds
	// through roles or direct grants.
	SystemPermissionSources(ctx context.Context, userID shared.ID, at time.Time) ([]PermissionSource, error)

	// OrganizationPermissionSources lists every organization permission the
	// user holds in the organization through collaboration roles and
	// direct grants.
	OrganizationPermissionSources(ctx context.Context, userID, organizationID shared.ID, at time.Time) ([]PermissionSource, error)
}
