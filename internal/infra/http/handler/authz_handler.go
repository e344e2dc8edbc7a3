package handler

import (
	"net/http"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/apierror"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

// AuthzHandler answers "can I do X" questions.
type AuthzHandler struct {
	base
	service *app.AuthorizationService
}

// NewAuthzHandler creates a new authorization query handler.
func NewAuthzHandler(svc *app.AuthorizationService, v *validator.Validator, log *logger.Logger) *AuthzHandler {
	return &AuthzHandler{
		base:    base{validator: v, logger: log},
		service: svc,
	}
}

// RequirementRequest names one permission, optionally within an organization.
type RequirementRequest struct {
	Permission     string  `json:"permission" validate:"required,permission_type"`
	OrganizationID *string `json:"organization_id" validate:"omitempty,uuid"`
}

func (rr RequirementRequest) requirement() (accesscontrol.Requirement, error) {
	t, err := permission.ParseType(rr.Permission)
	if err != nil {
		return accesscontrol.Requirement{}, err
	}
	if rr.OrganizationID == nil {
		return accesscontrol.System(t), nil
	}
	orgID, err := shared.IDFromString(*rr.OrganizationID)
	if err != nil {
		return accesscontrol.Requirement{}, err
	}
	return accesscontrol.Organization(orgID, t), nil
}

// CheckRequest asks whether a user holds a permission, or any of several.
// UserID defaults to the caller; checking someone else needs grant_manage.
type CheckRequest struct {
	UserID         *string              `json:"user_id" validate:"omitempty,uuid"`
	Permission     string               `json:"permission" validate:"omitempty,permission_type"`
	OrganizationID *string              `json:"organization_id" validate:"omitempty,uuid"`
	AnyOf          []RequirementRequest `json:"any_of" validate:"omitempty,max=20,dive"`
}

func (cr CheckRequest) requirement() (accesscontrol.Requirement, error) {
	switch {
	case cr.Permission != "" && len(cr.AnyOf) > 0:
		return accesscontrol.Requirement{}, apierror.BadRequest("Use either permission or any_of, not both")
	case cr.Permission != "":
		return RequirementRequest{Permission: cr.Permission, OrganizationID: cr.OrganizationID}.requirement()
	case len(cr.AnyOf) > 0:
		reqs := make([]accesscontrol.Requirement, len(cr.AnyOf))
		for i, alt := range cr.AnyOf {
			req, err := alt.requirement()
			if err != nil {
				return accesscontrol.Requirement{}, err
			}
			reqs[i] = req
		}
		return accesscontrol.AnyOf(reqs...), nil
	default:
		return accesscontrol.Requirement{}, apierror.BadRequest("permission or any_of is required")
	}
}

// Check handles POST /api/v1/authz/check. Types missing from the catalog
// are a 400, not a denial.
func (h *AuthzHandler) Check(w http.ResponseWriter, r *http.Request) {
	callerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	requirement, err := req.requirement()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	subject := callerID
	if req.UserID != nil {
		subject, err = shared.IDFromString(*req.UserID)
		if err != nil {
			apierror.BadRequest("Invalid user id").WriteJSON(w)
			return
		}
		if !subject.Equals(callerID) {
			if err := h.service.RequireSystemPermission(r.Context(), callerID, permission.GrantManage); err != nil {
				h.fail(w, r, err)
				return
			}
		}
	}

	d, err := h.service.CheckKnown(r.Context(), subject, requirement)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

// MyPermissions handles GET /api/v1/me/permissions. Without
// ?organization_id= it reports system scope.
func (h *AuthzHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := actor(w, r)
	if !ok {
		return
	}

	var orgID *shared.ID
	if v := r.URL.Query().Get("organization_id"); v != "" {
		id, err := shared.IDFromString(v)
		if err != nil {
			apierror.BadRequest("Invalid organization id").WriteJSON(w)
			return
		}
		orgID = &id
	}

	perms, err := h.service.EffectivePermissions(r.Context(), callerID, orgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEffectivePermissionsResponse(perms, orgID))
}
