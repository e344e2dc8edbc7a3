package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
	"github.com/openctemio/authz/pkg/validator"
)

// RoleHandler handles role-related HTTP requests. Organization routes carry
// {orgId}; system routes do not.
type RoleHandler struct {
	base
	service *app.RoleService
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(svc *app.RoleService, v *validator.Validator, log *logger.Logger) *RoleHandler {
	return &RoleHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

func roleFilter(r *http.Request) role.Filter {
	q := r.URL.Query()
	return role.Filter{
		Search:   q.Get("search"),
		IsActive: parseQueryBool(q.Get("is_active")),
	}
}

// scope resolves the organization of an organization route, or nil on a
// system route.
func (h *RoleHandler) scope(w http.ResponseWriter, r *http.Request) (*shared.ID, bool) {
	if chi.URLParam(r, "orgId") == "" {
		return nil, true
	}
	orgID, ok := organizationParam(w, r)
	if !ok {
		return nil, false
	}
	return &orgID, true
}

// CreateSystem handles POST /api/v1/system/roles
func (h *RoleHandler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.CreateRoleInput
	if !h.decode(w, r, &input) {
		return
	}

	ro, err := h.service.CreateSystemRole(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleResponse(ro))
}

// ListSystem handles GET /api/v1/system/roles
func (h *RoleHandler) ListSystem(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListSystemRoles(r.Context(), roleFilter(r), parsePagination(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(result, toRoleResponse))
}

// CreateForOrganization handles POST /api/v1/organizations/{orgId}/roles
func (h *RoleHandler) CreateForOrganization(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.CreateRoleInput
	if !h.decode(w, r, &input) {
		return
	}

	ro, err := h.service.CreateOrganizationRole(r.Context(), chi.URLParam(r, "orgId"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleResponse(ro))
}

// ListForOrganization handles GET /api/v1/organizations/{orgId}/roles
func (h *RoleHandler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListOrganizationRoles(r.Context(), chi.URLParam(r, "orgId"), roleFilter(r), parsePagination(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(result, toRoleResponse))
}

// Get handles GET /api/v1/roles/{id} and its organization variant.
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.scope(w, r)
	if !ok {
		return
	}

	d, err := h.service.GetRole(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDetailsResponse(d))
}

// Update handles PATCH /api/v1/roles/{id} and its organization variant.
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	orgID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var input app.UpdateRoleInput
	if !h.decode(w, r, &input) {
		return
	}

	ro, err := h.service.UpdateRole(r.Context(), orgID, chi.URLParam(r, "id"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleResponse(ro))
}

// Delete handles DELETE /api/v1/roles/{id} and its organization variant.
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	orgID, ok := h.scope(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), orgID, chi.URLParam(r, "id"), actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
