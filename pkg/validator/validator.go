// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
)

// Slugs are lowercase alphanumeric runs joined by single hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// tagChecks maps each custom tag to its check. Empty values pass so that
// "required" alone decides whether a field may be omitted. Only the format of
// a permission type is checked here; catalog membership is a resolution
// concern.
var tagChecks = map[string]func(string) bool{
	"permission_type":  func(s string) bool { return permission.Type(s).IsValid() },
	"role_type":        func(s string) bool { return role.Type(s).IsValid() },
	"permission_scope": func(s string) bool { return permission.Scope(s).IsValid() },
	"collaboration_status": func(s string) bool {
		_, err := collaboration.ParseStatus(s)
		return err == nil
	},
	"slug": slugRegex.MatchString,
}

// New creates a Validator with the domain tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, check := range tagChecks {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			return value == "" || check(value)
		})
	}
	return &Validator{validate: v}
}

// Validate returns ValidationErrors with snake_case field names when s
// fails any tag.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	result := make(ValidationErrors, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}
	return result
}

// formatErrorMessage phrases a failed tag for API clients.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind().String() == "slice" {
			return fmt.Sprintf("must contain at least %s items", e.Param())
		}
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		if e.Kind().String() == "slice" {
			return fmt.Sprintf("must contain at most %s items", e.Param())
		}
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "email":
		return "must be a valid email address"
	case "permission_type", "role_type":
		return "must be lowercase letters, digits and underscores, starting with a letter (2-64 chars)"
	case "permission_scope":
		return "must be one of: system, organization"
	case "collaboration_status":
		return "must be one of: pending, accepted, rejected"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "slug":
		return "must be a valid slug (lowercase letters, numbers, hyphens only)"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts a PascalCase field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
