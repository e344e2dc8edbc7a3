package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

// GrantHandler assigns and revokes system roles and direct permissions,
// singly and in bulk.
type GrantHandler struct {
	base
	service *app.GrantService
}

// NewGrantHandler creates a new grant handler.
func NewGrantHandler(svc *app.GrantService, v *validator.Validator, log *logger.Logger) *GrantHandler {
	return &GrantHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

// AssignSystemRole handles POST /api/v1/users/{userId}/system-roles
func (h *GrantHandler) AssignSystemRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.AssignSystemRoleInput
	if !h.decode(w, r, &input) {
		return
	}
	input.UserID = chi.URLParam(r, "userId")

	a, err := h.service.AssignSystemRole(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSystemRoleAssignmentResponse(a))
}

// RevokeSystemRole handles DELETE /api/v1/users/{userId}/system-roles/{roleId}
func (h *GrantHandler) RevokeSystemRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	err := h.service.RevokeSystemRole(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "roleId"), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantPermission handles POST /api/v1/users/{userId}/permissions
func (h *GrantHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.GrantPermissionInput
	if !h.decode(w, r, &input) {
		return
	}
	input.UserID = chi.URLParam(r, "userId")

	g, err := h.service.GrantPermission(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDirectGrantResponse(g))
}

// RevokePermission handles DELETE /api/v1/users/{userId}/permissions/{permissionId}.
// Organization grants name their organization in ?organization_id=.
func (h *GrantHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var orgID *string
	if v := r.URL.Query().Get("organization_id"); v != "" {
		orgID = &v
	}

	err := h.service.RevokePermission(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "permissionId"), orgID, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUserGrants handles GET /api/v1/users/{userId}/grants
func (h *GrantHandler) ListUserGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListUserGrants(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserGrantsResponse(grants))
}

// BulkAssignRoles handles POST /api/v1/bulk/system-roles. Pairs that fail
// are reported in failures; the response is 200 either way.
func (h *GrantHandler) BulkAssignRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.BulkAssignRolesInput
	if !h.decode(w, r, &input) {
		return
	}

	result, err := h.service.BulkAssignRoles(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResponse(result, toSystemRoleAssignmentResponse))
}

// BulkAssignPermissions handles POST /api/v1/organizations/{orgId}/bulk/permissions
func (h *GrantHandler) BulkAssignPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.BulkAssignPermissionsInput
	if !h.decode(w, r, &input) {
		return
	}
	input.OrganizationID = chi.URLParam(r, "orgId")

	result, err := h.service.BulkAssignPermissions(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResponse(result, toDirectGrantResponse))
}
