package collaboration

import (
	"context"

	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

// Filter narrows collaboration listings.
type Filter struct {
	Status   *Status
	IsActive *bool
	Search   string // email or collaborator name, case-insensitive
	RoleID   *shared.ID
	Sort     string // e.g. "-invited_at,email"
}

// GrantChanges describes the role and direct-permission bundle written in
// the same transaction as a collaboration row.
//
// When ReplaceRole is set, every active role attachment of the collaboration
// is deactivated and Role (if non-nil) becomes the single active one.
// When ReplaceDirectGrants is set, every active direct grant of the
// collaborator within the organization is revoked first. When
// RevokeIssuedGrants is set, only the active grants this collaboration
// issued are revoked.
//
// DirectGrants are then written and linked to the collaboration. After a
// replace they revive any row of the pair; otherwise a grant the
// collaborator already holds is left untouched and keeps its provenance.
type GrantChanges struct {
	ReplaceRole         bool
	Role                *grant.RoleAttachment
	ReplaceDirectGrants bool
	RevokeIssuedGrants  bool
	DirectGrants        []*grant.DirectGrant
	Actor               *shared.ID
}

// IsEmpty reports whether the changes touch no grant rows.
func (g GrantChanges) IsEmpty() bool {
	return !g.ReplaceRole && !g.ReplaceDirectGrants && !g.RevokeIssuedGrants && len(g.DirectGrants) == 0
}

// Repository defines persistence for collaborations.
type Repository interface {
	// Create inserts a collaboration and applies the grant changes in one
	// serializable transaction. A duplicate (collaborator, organization) pair
	// returns ErrCollaborationExists.
	Create(ctx context.Context, c *Collaboration, changes GrantChanges) error

	// Revive rewrites a stale (inactive) row in place and applies the grant
	// changes atomically. Returns ErrCollaborationExists if the row turned
	// live concurrently.
	Revive(ctx context.Context, c *Collaboration, changes GrantChanges) error

	// Update persists status, timestamps and is_active, and applies the grant
	// changes atomically.
	Update(ctx context.Context, c *Collaboration, changes GrantChanges) error

	// GetByID retrieves a collaboration.
	GetByID(ctx context.Context, id shared.ID) (*Collaboration, error)

	// GetByPair retrieves the collaboration of a user with an organization.
	GetByPair(ctx context.Context, collaboratorID, organizationID shared.ID) (*Collaboration, error)

	// List lists an organization's collaborations.
	List(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Collaboration], error)

	// ListRoleAttachments returns the attachments of a collaboration, newest first.
	ListRoleAttachments(ctx context.Context, collaborationID shared.ID) ([]*grant.RoleAttachment, error)
}
