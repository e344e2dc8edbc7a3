package organization

import (
	"context"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Repository defines persistence for organizations.
type Repository interface {
	// Create inserts the organization together with its seed permissions
	// in one transaction. A taken slug returns ErrSlugExists.
	Create(ctx context.Context, o *Organization, seed []*permission.Permission) error
	GetByID(ctx context.Context, id shared.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	UpdateOwner(ctx context.Context, o *Organization) error

	// OwnerOf returns the owner of an organization. It is on the
	// authorization read path and selects a single column.
	OwnerOf(ctx context.Context, id shared.ID) (shared.ID, error)
}
