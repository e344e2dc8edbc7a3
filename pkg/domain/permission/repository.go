package permission

import (
	"context"

	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

// Filter narrows catalog listings.
type Filter struct {
	Search   string // matches name or type, case-insensitive
	Resource string
	IsActive *bool
}

// Repository defines the interface for catalog persistence.
type Repository interface {
	// Create inserts a permission. A duplicate type within the scope
	// returns ErrPermissionTypeExists.
	Create(ctx context.Context, p *Permission) error

	// GetByID retrieves a permission by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Permission, error)

	// GetByIDs retrieves several permissions. Unknown IDs are omitted.
	GetByIDs(ctx context.Context, ids []shared.ID) ([]*Permission, error)

	// GetByType retrieves a permission by type within a scope.
	// organizationID must be nil for system permissions.
	GetByType(ctx context.Context, organizationID *shared.ID, t Type) (*Permission, error)

	// ListSystem lists system permissions.
	ListSystem(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Permission], error)

	// ListForOrganization lists one organization's permissions.
	ListForOrganization(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Permission], error)

	// ListActiveTypes returns every active type owned by an organization.
	ListActiveTypes(ctx context.Context, organizationID shared.ID) ([]Type, error)

	// Update persists name, description, resource, action and is_active.
	Update(ctx context.Context, p *Permission) error
}
