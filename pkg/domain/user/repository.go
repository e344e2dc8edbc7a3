package user

import (
	"context"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Repository defines the interface for user persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id shared.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIDs(ctx context.Context, ids []shared.ID) ([]*User, error)

	// UpsertFromIdentity resolves the local user for an authenticated
	// identity. A placeholder with the same email is claimed in place so
	// grants issued before sign-up carry over.
	UpsertFromIdentity(ctx context.Context, externalID, email, name string) (*User, error)
}
