// Package role provides the role registry.
// A role is a named bundle of permissions of its own scope: system roles
// bundle system permissions, organization roles bundle one organization's
// permissions. A principal's role-sourced authority is the union of the
// active permissions of its active roles.
package role

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Type is the unique tag of a role within its scope.
type Type string

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// IsValid reports whether the type is well formed.
func (t Type) IsValid() bool {
	return typePattern.MatchString(string(t))
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// Role represents a role entity that bundles permissions.
type Role struct {
	id             shared.ID
	scope          permission.Scope
	organizationID *shared.ID // nil = system role
	name           string
	roleType       Type
	description    string
	isActive       bool
	permissionIDs  []shared.ID
	createdBy      *shared.ID
	createdAt      time.Time
	updatedAt      time.Time
}

// Spec holds the caller-provided fields of a new role.
type Spec struct {
	Name        string
	Type        Type
	Description string
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: invalid role type %q", shared.ErrValidation, s.Type)
	}
	return nil
}

// NewSystem creates a platform-wide role. An empty permission set is allowed.
func NewSystem(spec Spec, permissionIDs []shared.ID, createdBy *shared.ID) (*Role, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return newRole(permission.ScopeSystem, nil, spec, permissionIDs, createdBy), nil
}

// NewForOrganization creates an organization-scoped role.
func NewForOrganization(organizationID shared.ID, spec Spec, permissionIDs []shared.ID, createdBy *shared.ID) (*Role, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organization id is required", shared.ErrValidation)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return newRole(permission.ScopeOrganization, &organizationID, spec, permissionIDs, createdBy), nil
}

func newRole(scope permission.Scope, orgID *shared.ID, spec Spec, permissionIDs []shared.ID, createdBy *shared.ID) *Role {
	now := time.Now().UTC()
	return &Role{
		id:             shared.NewID(),
		scope:          scope,
		organizationID: orgID,
		name:           strings.TrimSpace(spec.Name),
		roleType:       spec.Type,
		description:    spec.Description,
		isActive:       true,
		permissionIDs:  shared.UniqueIDs(permissionIDs),
		createdBy:      createdBy,
		createdAt:      now,
		updatedAt:      now,
	}
}

// Reconstitute rebuilds a role from persistence.
func Reconstitute(
	id shared.ID,
	scope permission.Scope,
	organizationID *shared.ID,
	name string,
	roleType Type,
	description string,
	isActive bool,
	permissionIDs []shared.ID,
	createdBy *shared.ID,
	createdAt, updatedAt time.Time,
) *Role {
	return &Role{
		id:             id,
		scope:          scope,
		organizationID: organizationID,
		name:           name,
		roleType:       roleType,
		description:    description,
		isActive:       isActive,
		permissionIDs:  permissionIDs,
		createdBy:      createdBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the role ID.
func (r *Role) ID() shared.ID { return r.id }

// Scope returns the role scope.
func (r *Role) Scope() permission.Scope { return r.scope }

// OrganizationID returns the owning organization (nil for system roles).
func (r *Role) OrganizationID() *shared.ID { return r.organizationID }

// Name returns the role name.
func (r *Role) Name() string { return r.name }

// Type returns the role type tag.
func (r *Role) Type() Type { return r.roleType }

// Description returns the role description.
func (r *Role) Description() string { return r.description }

// IsActive reports whether the role currently takes effect.
func (r *Role) IsActive() bool { return r.isActive }

// PermissionIDs returns the attached permission IDs.
func (r *Role) PermissionIDs() []shared.ID { return r.permissionIDs }

// CreatedBy returns who created the role.
func (r *Role) CreatedBy() *shared.ID { return r.createdBy }

// CreatedAt returns when the role was created.
func (r *Role) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns when the role was last updated.
func (r *Role) UpdatedAt() time.Time { return r.updatedAt }

// IsSystem returns true for platform-wide roles.
func (r *Role) IsSystem() bool { return r.scope == permission.ScopeSystem }

// BelongsTo reports whether the role is owned by the given organization.
func (r *Role) BelongsTo(organizationID shared.ID) bool {
	return r.organizationID != nil && r.organizationID.Equals(organizationID)
}

// HasPermission checks if the role references a permission.
func (r *Role) HasPermission(permissionID shared.ID) bool {
	return slices.Contains(r.permissionIDs, permissionID)
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// Apply applies a patch.
func (r *Role) Apply(patch Patch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", shared.ErrValidation)
		}
		r.name = name
	}
	if patch.Description != nil {
		r.description = *patch.Description
	}
	if patch.IsActive != nil {
		r.isActive = *patch.IsActive
	}
	r.updatedAt = time.Now().UTC()
	return nil
}

// ReplacePermissions fully replaces the attached set.
func (r *Role) ReplacePermissions(permissionIDs []shared.ID) {
	r.permissionIDs = shared.UniqueIDs(permissionIDs)
	r.updatedAt = time.Now().UTC()
}

// ValidatePermissions checks that every permission matches the role's scope
// and, for organization roles, belongs to the same organization.
func (r *Role) ValidatePermissions(perms []*permission.Permission) error {
	for _, p := range perms {
		if p.Scope() != r.scope {
			return fmt.Errorf("%w: permission %s is %s scoped", permission.ErrScopeMismatch, p.Type(), p.Scope())
		}
		if r.organizationID != nil && !p.BelongsTo(*r.organizationID) {
			return fmt.Errorf("%w: permission %s belongs to another organization", permission.ErrScopeMismatch, p.Type())
		}
	}
	return nil
}

// AssignmentSource tells how a principal holds a role.
type AssignmentSource string

const (
	AssignedDirectly         AssignmentSource = "system_assignment"
	AssignedViaCollaboration AssignmentSource = "collaboration"
)

// Assignee is a principal currently holding a role.
type Assignee struct {
	UserID          shared.ID
	Email           string
	Name            string
	Source          AssignmentSource
	CollaborationID *shared.ID
	AssignedBy      *shared.ID
	AssignedAt      time.Time
	ExpiresAt       *time.Time
}

// Details is a role together with its permissions and current assignees.
type Details struct {
	Role        *Role
	Permissions []*permission.Permission
	Assignees   []Assignee
}

// Errors
var (
	ErrRoleNotFound      = fmt.Errorf("%w: role not found", shared.ErrNotFound)
	ErrRoleTypeExists    = fmt.Errorf("%w: role type already exists in this scope", shared.ErrAlreadyExists)
	ErrRoleInUse         = fmt.Errorf("%w: role has active assignments and cannot be deleted", shared.ErrConflict)
	ErrUnknownPermission = fmt.Errorf("%w: unknown permission", shared.ErrValidation)
)
