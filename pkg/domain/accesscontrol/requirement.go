package accesscontrol

import (
	"fmt"
	"strings"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Kind discriminates the requirement variants.
type Kind string

const (
	KindSystem       Kind = "system"
	KindOrganization Kind = "organization"
	KindAnyOf        Kind = "any_of"
)

// Requirement is the declarative permission marker attached to a
// protected operation. Exactly one of the variants is populated.
type Requirement struct {
	kind           Kind
	permissionType permission.Type
	organizationID shared.ID
	anyOf          []Requirement
}

// System requires a platform-wide permission.
func System(t permission.Type) Requirement {
	return Requirement{kind: KindSystem, permissionType: t}
}

// Organization requires a permission within one organization. The
// organization is mandatory; Validate rejects a zero ID.
func Organization(organizationID shared.ID, t permission.Type) Requirement {
	return Requirement{kind: KindOrganization, permissionType: t, organizationID: organizationID}
}

// AnyOf is satisfied when at least one of the requirements is.
func AnyOf(reqs ...Requirement) Requirement {
	return Requirement{kind: KindAnyOf, anyOf: reqs}
}

// Kind returns the variant.
func (r Requirement) Kind() Kind { return r.kind }

// PermissionType returns the required type (empty for AnyOf).
func (r Requirement) PermissionType() permission.Type { return r.permissionType }

// OrganizationID returns the organization (zero unless KindOrganization).
func (r Requirement) OrganizationID() shared.ID { return r.organizationID }

// Alternatives returns the nested requirements of an AnyOf.
func (r Requirement) Alternatives() []Requirement { return r.anyOf }

// Validate checks the requirement is well formed.
func (r Requirement) Validate() error {
	switch r.kind {
	case KindSystem:
		if !r.permissionType.IsValid() {
			return fmt.Errorf("%w: invalid permission type %q", shared.ErrValidation, r.permissionType)
		}
	case KindOrganization:
		if r.organizationID.IsZero() {
			return fmt.Errorf("%w: organization id is required for %s", shared.ErrValidation, r.permissionType)
		}
		if !r.permissionType.IsValid() {
			return fmt.Errorf("%w: invalid permission type %q", shared.ErrValidation, r.permissionType)
		}
	case KindAnyOf:
		if len(r.anyOf) == 0 {
			return fmt.Errorf("%w: any-of requirement is empty", shared.ErrValidation)
		}
		for _, alt := range r.anyOf {
			if err := alt.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown requirement kind %q", shared.ErrValidation, r.kind)
	}
	return nil
}

// Missing names the permission(s) a failed check lacked.
func (r Requirement) Missing() string {
	if r.kind != KindAnyOf {
		return r.permissionType.String()
	}
	names := make([]string, 0, len(r.anyOf))
	for _, alt := range r.anyOf {
		names = append(names, alt.Missing())
	}
	return strings.Join(names, " or ")
}

// Forbidden builds the error returned when the requirement is not met.
func (r Requirement) Forbidden() error {
	org := ""
	if r.kind == KindOrganization {
		org = r.organizationID.String()
	}
	return shared.NewForbiddenError(string(r.kind), r.Missing(), org)
}

// String renders the requirement for logs.
func (r Requirement) String() string {
	switch r.kind {
	case KindSystem:
		return "system:" + r.permissionType.String()
	case KindOrganization:
		return "organization:" + r.organizationID.String() + ":" + r.permissionType.String()
	case KindAnyOf:
		parts := make([]string, 0, len(r.anyOf))
		for _, alt := range r.anyOf {
			parts = append(parts, alt.String())
		}
		return "any_of(" + strings.Join(parts, ",") + ")"
	}
	return "invalid"
}
