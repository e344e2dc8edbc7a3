package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
	"github.com/openctemio/authz/pkg/validator"
)

// PermissionHandler serves the permission catalog of both scopes.
type PermissionHandler struct {
	base
	service *app.PermissionService
}

// NewPermissionHandler creates a new permission handler.
func NewPermissionHandler(svc *app.PermissionService, v *validator.Validator, log *logger.Logger) *PermissionHandler {
	return &PermissionHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

func permissionFilter(r *http.Request) permission.Filter {
	q := r.URL.Query()
	return permission.Filter{
		Search:   q.Get("search"),
		Resource: q.Get("resource"),
		IsActive: parseQueryBool(q.Get("is_active")),
	}
}

// CreateSystem handles POST /api/v1/system/permissions
func (h *PermissionHandler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.CreatePermissionInput
	if !h.decode(w, r, &input) {
		return
	}

	p, err := h.service.CreateSystemPermission(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionResponse(p))
}

// ListSystem handles GET /api/v1/system/permissions
func (h *PermissionHandler) ListSystem(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListSystemPermissions(r.Context(), permissionFilter(r), parsePagination(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(result, toPermissionResponse))
}

// UpdateSystem handles PATCH /api/v1/permissions/{id}
func (h *PermissionHandler) UpdateSystem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.UpdatePermissionInput
	if !h.decode(w, r, &input) {
		return
	}

	p, err := h.service.UpdatePermission(r.Context(), nil, chi.URLParam(r, "id"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionResponse(p))
}

// CreateForOrganization handles POST /api/v1/organizations/{orgId}/permissions
func (h *PermissionHandler) CreateForOrganization(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.CreatePermissionInput
	if !h.decode(w, r, &input) {
		return
	}

	p, err := h.service.CreateOrganizationPermission(r.Context(), chi.URLParam(r, "orgId"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionResponse(p))
}

// ListForOrganization handles GET /api/v1/organizations/{orgId}/permissions
func (h *PermissionHandler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListOrganizationPermissions(r.Context(), chi.URLParam(r, "orgId"), permissionFilter(r), parsePagination(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(result, toPermissionResponse))
}

// UpdateForOrganization handles PATCH /api/v1/organizations/{orgId}/permissions/{id}
func (h *PermissionHandler) UpdateForOrganization(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	orgID, ok := organizationParam(w, r)
	if !ok {
		return
	}
	var input app.UpdatePermissionInput
	if !h.decode(w, r, &input) {
		return
	}

	p, err := h.service.UpdatePermission(r.Context(), &orgID, chi.URLParam(r, "id"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionResponse(p))
}
