package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/pkg/apierror"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Authorizer enforces a requirement for a user. A denial is returned as a
// *shared.ForbiddenError.
type Authorizer interface {
	Require(ctx context.Context, userID shared.ID, req accesscontrol.Requirement) error
}

// RequirementFunc builds the requirement of a route from its request.
type RequirementFunc func(r *http.Request) (accesscontrol.Requirement, error)

// System requires a platform-wide permission.
func System(t permission.Type) RequirementFunc {
	return func(*http.Request) (accesscontrol.Requirement, error) {
		return accesscontrol.System(t), nil
	}
}

// Organization requires a permission in the organization named by the URL
// parameter param. A missing or malformed parameter is a bad request.
func Organization(param string, t permission.Type) RequirementFunc {
	return func(r *http.Request) (accesscontrol.Requirement, error) {
		raw := chi.URLParam(r, param)
		if raw == "" {
			return accesscontrol.Requirement{}, fmt.Errorf("%w: %s is required", shared.ErrValidation, param)
		}
		orgID, err := shared.IDFromString(raw)
		if err != nil {
			return accesscontrol.Requirement{}, fmt.Errorf("%w: invalid %s", shared.ErrValidation, param)
		}
		return accesscontrol.Organization(orgID, t), nil
	}
}

// AnyOf is satisfied when one of the requirements is.
func AnyOf(fns ...RequirementFunc) RequirementFunc {
	return func(r *http.Request) (accesscontrol.Requirement, error) {
		reqs := make([]accesscontrol.Requirement, 0, len(fns))
		for _, fn := range fns {
			req, err := fn(r)
			if err != nil {
				return accesscontrol.Requirement{}, err
			}
			reqs = append(reqs, req)
		}
		return accesscontrol.AnyOf(reqs...), nil
	}
}

// Require guards a route. It runs after Authenticate.
func Require(authz Authorizer, build RequirementFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				apierror.Unauthorized("Authentication required").WriteJSON(w)
				return
			}

			req, err := build(r)
			if err != nil {
				apierror.FromError(err).WriteJSON(w)
				return
			}

			if err := authz.Require(r.Context(), userID, req); err != nil {
				apierror.FromError(err).WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
