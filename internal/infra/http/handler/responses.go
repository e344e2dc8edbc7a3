package handler

import (
	"time"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// PermissionResponse represents a permission in API responses.
type PermissionResponse struct {
	ID             string    `json:"id"`
	Scope          string    `json:"scope"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Resource       string    `json:"resource,omitempty"`
	Action         string    `json:"action,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toPermissionResponse(p *permission.Permission) PermissionResponse {
	return PermissionResponse{
		ID:             p.ID().String(),
		Scope:          p.Scope().String(),
		OrganizationID: idString(p.OrganizationID()),
		Type:           p.Type().String(),
		Name:           p.Name(),
		Description:    p.Description(),
		Resource:       p.Resource(),
		Action:         p.Action(),
		IsActive:       p.IsActive(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}

// RoleResponse represents a role in API responses.
type RoleResponse struct {
	ID             string    `json:"id"`
	Scope          string    `json:"scope"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	IsActive       bool      `json:"is_active"`
	PermissionIDs  []string  `json:"permission_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toRoleResponse(r *role.Role) RoleResponse {
	return RoleResponse{
		ID:             r.ID().String(),
		Scope:          r.Scope().String(),
		OrganizationID: idString(r.OrganizationID()),
		Type:           r.Type().String(),
		Name:           r.Name(),
		Description:    r.Description(),
		IsActive:       r.IsActive(),
		PermissionIDs:  shared.IDStrings(r.PermissionIDs()),
		CreatedAt:      r.CreatedAt(),
		UpdatedAt:      r.UpdatedAt(),
	}
}

// AssigneeResponse is a user holding a role, directly or through a
// collaboration.
type AssigneeResponse struct {
	UserID          string     `json:"user_id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Source          string     `json:"source"`
	CollaborationID *string    `json:"collaboration_id,omitempty"`
	AssignedBy      *string    `json:"assigned_by,omitempty"`
	AssignedAt      time.Time  `json:"assigned_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// RoleDetailsResponse is a role with its permissions and assignees.
type RoleDetailsResponse struct {
	RoleResponse
	Permissions []PermissionResponse `json:"permissions"`
	Assignees   []AssigneeResponse   `json:"assignees"`
}

func toRoleDetailsResponse(d *role.Details) RoleDetailsResponse {
	resp := RoleDetailsResponse{
		RoleResponse: toRoleResponse(d.Role),
		Permissions:  make([]PermissionResponse, len(d.Permissions)),
		Assignees:    make([]AssigneeResponse, len(d.Assignees)),
	}
	for i, p := range d.Permissions {
		resp.Permissions[i] = toPermissionResponse(p)
	}
	for i, a := range d.Assignees {
		resp.Assignees[i] = AssigneeResponse{
			UserID:          a.UserID.String(),
			Email:           a.Email,
			Name:            a.Name,
			Source:          string(a.Source),
			CollaborationID: idString(a.CollaborationID),
			AssignedBy:      idString(a.AssignedBy),
			AssignedAt:      a.AssignedAt,
			ExpiresAt:       utc(a.ExpiresAt),
		}
	}
	return resp
}

// SystemRoleAssignmentResponse represents a system role granted to a user.
type SystemRoleAssignmentResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	AssignedBy *string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	RevokedBy  *string    `json:"revoked_by,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

func toSystemRoleAssignmentResponse(a *grant.SystemRoleAssignment) SystemRoleAssignmentResponse {
	return SystemRoleAssignmentResponse{
		ID:         a.ID().String(),
		UserID:     a.UserID().String(),
		RoleID:     a.RoleID().String(),
		AssignedBy: idString(a.AssignedBy()),
		AssignedAt: a.AssignedAt(),
		ExpiresAt:  utc(a.ExpiresAt()),
		IsActive:   a.IsActive(),
		RevokedBy:  idString(a.RevokedBy()),
		RevokedAt:  utc(a.RevokedAt()),
	}
}

// DirectGrantResponse represents a permission granted without a role.
type DirectGrantResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	PermissionID   string     `json:"permission_id"`
	Scope          string     `json:"scope"`
	OrganizationID *string    `json:"organization_id,omitempty"`
	GrantedBy      *string    `json:"granted_by,omitempty"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	RevokedBy      *string    `json:"revoked_by,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

func toDirectGrantResponse(g *grant.DirectGrant) DirectGrantResponse {
	return DirectGrantResponse{
		ID:             g.ID().String(),
		UserID:         g.UserID().String(),
		PermissionID:   g.PermissionID().String(),
		Scope:          g.Scope().String(),
		OrganizationID: idString(g.OrganizationID()),
		GrantedBy:      idString(g.GrantedBy()),
		GrantedAt:      g.GrantedAt(),
		ExpiresAt:      utc(g.ExpiresAt()),
		IsActive:       g.IsActive(),
		RevokedBy:      idString(g.RevokedBy()),
		RevokedAt:      utc(g.RevokedAt()),
	}
}

// UserGrantsResponse lists every grant of a user, active and historical.
type UserGrantsResponse struct {
	SystemRoles  []SystemRoleAssignmentResponse `json:"system_roles"`
	DirectGrants []DirectGrantResponse          `json:"direct_grants"`
}

func toUserGrantsResponse(g *app.UserGrants) UserGrantsResponse {
	resp := UserGrantsResponse{
		SystemRoles:  make([]SystemRoleAssignmentResponse, len(g.SystemRoles)),
		DirectGrants: make([]DirectGrantResponse, len(g.DirectGrants)),
	}
	for i, a := range g.SystemRoles {
		resp.SystemRoles[i] = toSystemRoleAssignmentResponse(a)
	}
	for i, d := range g.DirectGrants {
		resp.DirectGrants[i] = toDirectGrantResponse(d)
	}
	return resp
}

// BulkResponse reports a bulk operation pair by pair.
type BulkResponse[T any] struct {
	SuccessCount int               `json:"success_count"`
	FailedCount  int               `json:"failed_count"`
	Succeeded    []T               `json:"succeeded"`
	Failures     []app.BulkFailure `json:"failures"`
}

func toBulkResponse[S, T any](r *app.BulkResult[S], fn func(S) T) BulkResponse[T] {
	resp := BulkResponse[T]{
		SuccessCount: r.SuccessCount,
		FailedCount:  len(r.Failures),
		Succeeded:    make([]T, len(r.Succeeded)),
		Failures:     r.Failures,
	}
	if resp.Failures == nil {
		resp.Failures = []app.BulkFailure{}
	}
	for i, s := range r.Succeeded {
		resp.Succeeded[i] = fn(s)
	}
	return resp
}

// CollaborationResponse represents a collaboration in API responses.
type CollaborationResponse struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organization_id"`
	CollaboratorID   string     `json:"collaborator_id"`
	Email            string     `json:"email"`
	CollaboratorName string     `json:"collaborator_name,omitempty"`
	Status           string     `json:"status"`
	IsActive         bool       `json:"is_active"`
	InvitedBy        string     `json:"invited_by"`
	InvitedAt        time.Time  `json:"invited_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toCollaborationResponse(c *collaboration.Collaboration) CollaborationResponse {
	return CollaborationResponse{
		ID:               c.ID().String(),
		OrganizationID:   c.OrganizationID().String(),
		CollaboratorID:   c.CollaboratorID().String(),
		Email:            c.Email(),
		CollaboratorName: c.CollaboratorName(),
		Status:           c.Status().String(),
		IsActive:         c.IsActive(),
		InvitedBy:        c.InvitedBy().String(),
		InvitedAt:        c.InvitedAt(),
		AcceptedAt:       utc(c.AcceptedAt()),
		ExpiresAt:        utc(c.ExpiresAt()),
		UpdatedAt:        c.UpdatedAt(),
	}
}

// RoleAttachmentResponse is a role attached to a collaboration.
type RoleAttachmentResponse struct {
	ID         string    `json:"id"`
	RoleID     string    `json:"role_id"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
	IsActive   bool      `json:"is_active"`
}

func toRoleAttachmentResponse(a *grant.RoleAttachment) RoleAttachmentResponse {
	return RoleAttachmentResponse{
		ID:         a.ID().String(),
		RoleID:     a.RoleID().String(),
		AssignedBy: idString(a.AssignedBy()),
		AssignedAt: a.AssignedAt(),
		IsActive:   a.IsActive(),
	}
}

// OrganizationResponse represents an organization in API responses.
type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOrganizationResponse(o *organization.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:          o.ID().String(),
		Name:        o.Name(),
		Slug:        o.Slug(),
		OwnerUserID: o.OwnerUserID().String(),
		CreatedAt:   o.CreatedAt(),
		UpdatedAt:   o.UpdatedAt(),
	}
}

// PermissionSourceResponse names one origin of an effective permission.
type PermissionSourceResponse struct {
	Source     string `json:"source"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
}

// EffectivePermissionsResponse is the resolved permission set of a user.
type EffectivePermissionsResponse struct {
	OrganizationID *string                               `json:"organization_id,omitempty"`
	Permissions    []string                              `json:"permissions"`
	Sources        map[string][]PermissionSourceResponse `json:"sources"`
}

func toEffectivePermissionsResponse(e *accesscontrol.EffectivePermissions, orgID *shared.ID) EffectivePermissionsResponse {
	resp := EffectivePermissionsResponse{
		OrganizationID: idString(orgID),
		Permissions:    make([]string, len(e.Types)),
		Sources:        make(map[string][]PermissionSourceResponse, len(e.Sources)),
	}
	for i, t := range e.Types {
		resp.Permissions[i] = t.String()
	}
	for t, sources := range e.Sources {
		out := make([]PermissionSourceResponse, len(sources))
		for i, s := range sources {
			out[i] = PermissionSourceResponse{
				Source:     string(s.Source),
				SourceID:   s.SourceID.String(),
				SourceName: s.SourceName,
			}
		}
		resp.Sources[t.String()] = out
	}
	return resp
}

// DecisionResponse is the answer of an authorization check.
type DecisionResponse struct {
	Allowed        bool    `json:"allowed"`
	Permission     string  `json:"permission"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Source         string  `json:"source,omitempty"`
}

func toDecisionResponse(d accesscontrol.Decision) DecisionResponse {
	return DecisionResponse{
		Allowed:        d.Allowed,
		Permission:     d.Permission.String(),
		OrganizationID: idString(d.OrganizationID),
		Source:         string(d.Source),
	}
}
