package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

// OrganizationHandler handles organization-related HTTP requests.
type OrganizationHandler struct {
	base
	service *app.OrganizationService
}

// NewOrganizationHandler creates a new organization handler.
func NewOrganizationHandler(svc *app.OrganizationService, v *validator.Validator, log *logger.Logger) *OrganizationHandler {
	return &OrganizationHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

// Create handles POST /api/v1/organizations. The caller becomes owner.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.CreateOrganizationInput
	if !h.decode(w, r, &input) {
		return
	}

	o, err := h.service.CreateOrganization(r.Context(), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrganizationResponse(o))
}

// Get handles GET /api/v1/organizations/{orgId}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrganization(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(o))
}

// Transfer handles POST /api/v1/organizations/{orgId}/transfer
func (h *OrganizationHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var input app.TransferOwnershipInput
	if !h.decode(w, r, &input) {
		return
	}

	o, err := h.service.TransferOwnership(r.Context(), chi.URLParam(r, "orgId"), input, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(o))
}
