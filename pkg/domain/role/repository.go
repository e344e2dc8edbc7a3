package role

import (
	"context"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

// Filter narrows role listings.
type Filter struct {
	Search   string
	IsActive *bool
}

// Repository defines the interface for role persistence operations.
type Repository interface {
	// === Role CRUD ===

	// Create inserts the role and its permission attachments atomically.
	Create(ctx context.Context, r *Role) error

	// GetByID retrieves a role with its permission IDs.
	GetByID(ctx context.Context, id shared.ID) (*Role, error)

	// GetByType retrieves a role by type. organizationID is nil for system roles.
	GetByType(ctx context.Context, organizationID *shared.ID, t Type) (*Role, error)

	// ListSystem lists system roles.
	ListSystem(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Role], error)

	// ListForOrganization lists one organization's roles.
	ListForOrganization(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Role], error)

	// Update persists role fields. When replacePermissions is true the
	// attachment set is deleted and re-inserted in the same transaction.
	Update(ctx context.Context, r *Role, replacePermissions bool) error

	// Delete retires a role. Returns ErrRoleInUse while any active
	// assignment references it.
	Delete(ctx context.Context, id shared.ID) error

	// === Role contents ===

	// ListPermissions returns the permissions attached to a role.
	ListPermissions(ctx context.Context, roleID shared.ID) ([]*permission.Permission, error)

	// ListAssignees returns principals currently holding the role.
	ListAssignees(ctx context.Context, roleID shared.ID) ([]Assignee, error)

	// CountActiveAssignments counts active assignments referencing the role.
	CountActiveAssignments(ctx context.Context, roleID shared.ID) (int, error)
}
