package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
	"github.com/openctemio/authz/pkg/validator"
)

// CollaborationHandler manages external collaborators of organizations.
// Management routes check collaborator_manage inside the service, because
// the organization is only known once the collaboration is loaded.
type CollaborationHandler struct {
	base
	service *app.CollaborationService
}

// NewCollaborationHandler creates a new collaboration handler.
func NewCollaborationHandler(svc *app.CollaborationService, v *validator.Validator, log *logger.Logger) *CollaborationHandler {
	return &CollaborationHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

// Invite handles POST /api/v1/organizations/{orgId}/collaborations
func (h *CollaborationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.InviteInput
	if !h.decode(w, r, &input) {
		return
	}
	input.OrganizationID = chi.URLParam(r, "orgId")

	c, err := h.service.Invite(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollaborationResponse(c))
}

// List handles GET /api/v1/organizations/{orgId}/collaborations
func (h *CollaborationHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	input := app.ListCollaborationsInput{
		Status:   q.Get("status"),
		IsActive: parseQueryBool(q.Get("is_active")),
		Search:   q.Get("search"),
		RoleID:   q.Get("role_id"),
		Sort:     q.Get("sort"),
	}
	if !h.validate(w, input) {
		return
	}

	result, err := h.service.List(r.Context(), chi.URLParam(r, "orgId"), input, parsePagination(r), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(result, toCollaborationResponse))
}

// Update handles PATCH /api/v1/collaborations/{id}
func (h *CollaborationHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.UpdateCollaborationInput
	if !h.decode(w, r, &input) {
		return
	}

	c, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollaborationResponse(c))
}

// Remove handles DELETE /api/v1/collaborations/{id}
func (h *CollaborationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), chi.URLParam(r, "id"), actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept handles POST /api/v1/collaborations/{id}/accept
func (h *CollaborationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	c, err := h.service.Accept(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollaborationResponse(c))
}

// Reject handles POST /api/v1/collaborations/{id}/reject
func (h *CollaborationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	c, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollaborationResponse(c))
}

// Roles handles GET /api/v1/collaborations/{id}/roles
func (h *CollaborationHandler) Roles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	attachments, err := h.service.RoleAttachments(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]RoleAttachmentResponse, len(attachments))
	for i, a := range attachments {
		resp[i] = toRoleAttachmentResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": resp})
}
