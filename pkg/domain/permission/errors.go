package permission

import (
	"fmt"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Errors
var (
	ErrPermissionNotFound   = fmt.Errorf("%w: permission not found", shared.ErrNotFound)
	ErrPermissionTypeExists = fmt.Errorf("%w: permission type already exists in this scope", shared.ErrAlreadyExists)
	ErrScopeMismatch        = fmt.Errorf("%w: permission scope does not match", shared.ErrValidation)
)
