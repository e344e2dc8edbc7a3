package permission

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Permission is one catalog entry.
type Permission struct {
	id             shared.ID
	scope          Scope
	organizationID *shared.ID // nil for system permissions
	name           string
	permType       Type
	description    string
	resource       string
	action         string
	isActive       bool
	createdAt      time.Time
	updatedAt      time.Time
}

// Spec holds the caller-provided fields of a new permission.
type Spec struct {
	Name        string
	Type        Type
	Description string
	Resource    string
	Action      string
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: invalid permission type %q", shared.ErrValidation, s.Type)
	}
	return nil
}

// NewSystem creates an active system permission.
func NewSystem(spec Spec) (*Permission, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return newPermission(ScopeSystem, nil, spec), nil
}

// NewForOrganization creates an active permission owned by one organization.
func NewForOrganization(organizationID shared.ID, spec Spec) (*Permission, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organization id is required", shared.ErrValidation)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return newPermission(ScopeOrganization, &organizationID, spec), nil
}

func newPermission(scope Scope, orgID *shared.ID, spec Spec) *Permission {
	now := time.Now().UTC()
	return &Permission{
		id:             shared.NewID(),
		scope:          scope,
		organizationID: orgID,
		name:           strings.TrimSpace(spec.Name),
		permType:       spec.Type,
		description:    spec.Description,
		resource:       spec.Resource,
		action:         spec.Action,
		isActive:       true,
		createdAt:      now,
		updatedAt:      now,
	}
}

// Reconstitute rebuilds a permission from persistence.
func Reconstitute(
	id shared.ID,
	scope Scope,
	organizationID *shared.ID,
	name string,
	permType Type,
	description, resource, action string,
	isActive bool,
	createdAt, updatedAt time.Time,
) *Permission {
	return &Permission{
		id:             id,
		scope:          scope,
		organizationID: organizationID,
		name:           name,
		permType:       permType,
		description:    description,
		resource:       resource,
		action:         action,
		isActive:       isActive,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the permission ID.
func (p *Permission) ID() shared.ID { return p.id }

// Scope returns whether the permission is system or organization scoped.
func (p *Permission) Scope() Scope { return p.scope }

// OrganizationID returns the owning organization (nil for system permissions).
func (p *Permission) OrganizationID() *shared.ID { return p.organizationID }

// Name returns the display name.
func (p *Permission) Name() string { return p.name }

// Type returns the type tag.
func (p *Permission) Type() Type { return p.permType }

// Description returns the description.
func (p *Permission) Description() string { return p.description }

// Resource returns the resource the permission applies to.
func (p *Permission) Resource() string { return p.resource }

// Action returns the action the permission allows.
func (p *Permission) Action() string { return p.action }

// IsActive reports whether the permission currently takes effect.
func (p *Permission) IsActive() bool { return p.isActive }

// CreatedAt returns when the permission was created.
func (p *Permission) CreatedAt() time.Time { return p.createdAt }

// UpdatedAt returns when the permission was last updated.
func (p *Permission) UpdatedAt() time.Time { return p.updatedAt }

// IsSystem returns true for platform-wide permissions.
func (p *Permission) IsSystem() bool { return p.scope == ScopeSystem }

// BelongsTo reports whether the permission is owned by the given organization.
func (p *Permission) BelongsTo(organizationID shared.ID) bool {
	return p.organizationID != nil && p.organizationID.Equals(organizationID)
}

// Patch describes a partial update. Nil fields are left unchanged.
// The type tag is immutable.
type Patch struct {
	Name        *string
	Description *string
	Resource    *string
	Action      *string
	IsActive    *bool
}

// Apply applies a patch.
func (p *Permission) Apply(patch Patch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", shared.ErrValidation)
		}
		p.name = name
	}
	if patch.Description != nil {
		p.description = *patch.Description
	}
	if patch.Resource != nil {
		p.resource = *patch.Resource
	}
	if patch.Action != nil {
		p.action = *patch.Action
	}
	if patch.IsActive != nil {
		p.isActive = *patch.IsActive
	}
	p.updatedAt = time.Now().UTC()
	return nil
}
