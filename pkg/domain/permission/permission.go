// Package permission defines the permission catalog.
//
// The catalog is data-driven: each permission is a row identified by a
// type tag such as "event_view" or "crm". Types are unique within their
// scope, which is either the whole platform (system permissions) or one
// organization (organization permissions).
//
// Type tags follow the pattern:
//
//	{resource}_{action}
//
// Examples:
//   - event_view
//   - collaborator_manage
//   - crm (single-word capabilities are allowed)
package permission

import (
	"fmt"
	"regexp"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Type is the tag a permission is checked by.
type Type string

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// IsValid reports whether the type is well formed.
func (t Type) IsValid() bool {
	return typePattern.MatchString(string(t))
}

// ParseType validates a raw type tag.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid permission type %q", shared.ErrValidation, s)
	}
	return t, nil
}

// Scope tells whether a permission (or role) applies platform-wide or to one organization.
type Scope string

const (
	ScopeSystem       Scope = "system"
	ScopeOrganization Scope = "organization"
)

// IsValid reports whether the scope is known.
func (s Scope) IsValid() bool {
	return s == ScopeSystem || s == ScopeOrganization
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}

// =============================================================================
// PLATFORM (system scope)
// =============================================================================

const (
	// Catalog administration
	PermissionManage Type = "permission_manage"
	RoleManage       Type = "role_manage"
	GrantManage      Type = "grant_manage"

	// Events
	EventView   Type = "event_view"
	EventManage Type = "event_manage"
)

// =============================================================================
// ORGANIZATION (organization scope)
// =============================================================================

const (
	CollaboratorManage Type = "collaborator_manage"
	OrganizationView   Type = "organization_view"
	CRM                Type = "crm"
	Backoffice         Type = "backoffice"
)

// OrganizationDefaults are seeded into every new organization so that
// the organization-scoped endpoints have permissions to be guarded by.
func OrganizationDefaults() []Type {
	return []Type{CollaboratorManage, PermissionManage, RoleManage, OrganizationView}
}
