// Package user provides the user directory the authorization engine
// attaches grants to. Credentials live with the identity provider.
package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// User represents a principal known to the engine.
type User struct {
	id            shared.ID
	externalID    *string // identity provider subject, nil for placeholders
	email         string
	name          string
	isPlaceholder bool
	createdAt     time.Time
	updatedAt     time.Time
}

// NewPlaceholder creates a credential-less user that stands in for an
// invited collaborator until they sign in.
func NewPlaceholder(email, name string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if strings.TrimSpace(name) == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	now := time.Now().UTC()
	return &User{
		id:            shared.NewID(),
		email:         email,
		name:          strings.TrimSpace(name),
		isPlaceholder: true,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// Reconstitute recreates a user from persistence.
func Reconstitute(id shared.ID, externalID *string, email, name string, isPlaceholder bool, createdAt, updatedAt time.Time) *User {
	return &User{
		id:            id,
		externalID:    externalID,
		email:         email,
		name:          name,
		isPlaceholder: isPlaceholder,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the user ID.
func (u *User) ID() shared.ID { return u.id }

// ExternalID returns the identity provider subject.
func (u *User) ExternalID() *string { return u.externalID }

// Email returns the user's email.
func (u *User) Email() string { return u.email }

// Name returns the user's name.
func (u *User) Name() string { return u.name }

// IsPlaceholder reports whether the user has never signed in.
func (u *User) IsPlaceholder() bool { return u.isPlaceholder }

// CreatedAt returns when the user was created.
func (u *User) CreatedAt() time.Time { return u.createdAt }

// UpdatedAt returns when the user was last updated.
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

// NormalizeEmail lower-cases and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Domain errors for user operations.
var (
	ErrUserNotFound  = fmt.Errorf("user %w", shared.ErrNotFound)
	ErrInvalidEmail  = fmt.Errorf("%w: invalid email", shared.ErrValidation)
	ErrEmailTaken    = fmt.Errorf("%w: email belongs to another user", shared.ErrAlreadyExists)
	ErrIdentityTaken = fmt.Errorf("%w: email is linked to another identity", shared.ErrConflict)
)
