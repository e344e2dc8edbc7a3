// Package handler holds the HTTP handlers of the authorization API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/authz/internal/infra/http/middleware"
	"github.com/openctemio/authz/pkg/apierror"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/pagination"
	"github.com/openctemio/authz/pkg/validator"
)

// base carries the dependencies every handler shares.
type base struct {
	validator *validator.Validator
	logger    *logger.Logger
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (b base) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierror.New(http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Request body too large").WriteJSON(w)
		case errors.Is(err, io.EOF):
			apierror.BadRequest("Request body is required").WriteJSON(w)
		default:
			apierror.BadRequest("Invalid request body").WriteJSON(w)
		}
		return false
	}
	return b.validate(w, dst)
}

func (b base) validate(w http.ResponseWriter, v any) bool {
	err := b.validator.Validate(v)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make(apierror.ValidationErrors, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{Field: ve.Field, Message: ve.Message}
		}
		apiErrors.ToAPIError().WriteJSON(w)
		return false
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
	return false
}

// fail maps a service error to its response. Server-side failures are
// logged; clients only ever see the generic message.
func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		b.logger.WithContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	apiErr.WriteJSONWithRequestID(w, middleware.GetRequestID(r.Context()))
}

// actor returns the authenticated caller or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
	}
	return id, ok
}

// organizationParam parses the {orgId} URL parameter.
func organizationParam(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	id, err := shared.IDFromString(chi.URLParam(r, "orgId"))
	if err != nil {
		apierror.BadRequest("Invalid organization id").WriteJSON(w)
		return shared.ID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parsePagination reads page and per_page, clamped by pkg/pagination.
func parsePagination(r *http.Request) pagination.Pagination {
	q := r.URL.Query()
	return pagination.New(parseQueryInt(q.Get("page"), 1), parseQueryInt(q.Get("per_page"), pagination.DefaultPerPage))
}

func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// parseQueryBool accepts "true" and "1" as true. Empty yields nil.
func parseQueryBool(s string) *bool {
	if s == "" {
		return nil
	}
	val := s == "true" || s == "1"
	return &val
}

func idString(id *shared.ID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
