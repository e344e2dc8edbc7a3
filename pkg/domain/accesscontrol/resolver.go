// Package accesscontrol holds the value types of the authorization read
// path: requirements, decisions and permission provenance.
package accesscontrol

import (
	"slices"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Source identifies which kind of authority produced a permission.
type Source string

const (
	SourceOwner            Source = "owner"
	SourceSystemRole       Source = "system_role"
	SourceOrganizationRole Source = "organization_role"
	SourceDirect           Source = "direct"
)

// Decision is the outcome of a check.
type Decision struct {
	Allowed        bool
	Requirement    Requirement
	Permission     permission.Type // the type that matched, or the first checked
	OrganizationID *shared.ID
	Source         Source // empty when denied
}

// Deny builds a negative decision for a requirement.
func Deny(req Requirement) Decision {
	d := Decision{Requirement: req, Permission: req.PermissionType()}
	if req.Kind() == KindOrganization {
		org := req.OrganizationID()
		d.OrganizationID = &org
	}
	return d
}

// Allow builds a positive decision for a single-scope requirement.
func Allow(req Requirement, source Source) Decision {
	d := Deny(req)
	d.Allowed = true
	d.Source = source
	return d
}

// PermissionSource describes where a permission came from.
type PermissionSource struct {
	Type       permission.Type
	Source     Source
	SourceID   shared.ID // role ID, grant ID or organization ID
	SourceName string
}

// EffectivePermissions represents the resolved permissions of a user.
type EffectivePermissions struct {
	Types   []permission.Type
	Sources map[permission.Type][]PermissionSource
}

// NewEffectivePermissions unions sourced permissions into a sorted type set.
func NewEffectivePermissions(sources []PermissionSource) *EffectivePermissions {
	bySource := make(map[permission.Type][]PermissionSource)
	for _, s := range sources {
		bySource[s.Type] = append(bySource[s.Type], s)
	}

	types := make([]permission.Type, 0, len(bySource))
	for t := range bySource {
		types = append(types, t)
	}
	slices.Sort(types)

	return &EffectivePermissions{Types: types, Sources: bySource}
}

// Has reports whether the type is among the effective permissions.
func (e *EffectivePermissions) Has(t permission.Type) bool {
	_, ok := e.Sources[t]
	return ok
}
