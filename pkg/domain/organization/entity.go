// Package organization provides the organization aggregate. An
// organization has its own identity and exactly one owner, who implicitly
// holds every organization permission.
package organization

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

var (
	slugRegex    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Organization represents a tenant of the platform.
type Organization struct {
	id          shared.ID
	name        string
	slug        string
	ownerUserID shared.ID
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates an organization owned by its creator.
func New(name, slug string, ownerUserID shared.ID) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if slug == "" {
		slug = GenerateSlug(name)
	}
	if !IsValidSlug(slug) {
		return nil, fmt.Errorf("%w: invalid slug format (use lowercase letters, numbers, and hyphens)", shared.ErrValidation)
	}
	if ownerUserID.IsZero() {
		return nil, fmt.Errorf("%w: owner is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Organization{
		id:          shared.NewID(),
		name:        name,
		slug:        slug,
		ownerUserID: ownerUserID,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstitute recreates an organization from persistence.
func Reconstitute(id shared.ID, name, slug string, ownerUserID shared.ID, createdAt, updatedAt time.Time) *Organization {
	return &Organization{
		id:          id,
		name:        name,
		slug:        slug,
		ownerUserID: ownerUserID,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the organization ID.
func (o *Organization) ID() shared.ID { return o.id }

// Name returns the organization name.
func (o *Organization) Name() string { return o.name }

// Slug returns the URL-friendly identifier.
func (o *Organization) Slug() string { return o.slug }

// OwnerUserID returns the owning user.
func (o *Organization) OwnerUserID() shared.ID { return o.ownerUserID }

// CreatedAt returns when the organization was created.
func (o *Organization) CreatedAt() time.Time { return o.createdAt }

// UpdatedAt returns when the organization was last updated.
func (o *Organization) UpdatedAt() time.Time { return o.updatedAt }

// IsOwner reports whether the user owns the organization.
func (o *Organization) IsOwner(userID shared.ID) bool {
	return o.ownerUserID.Equals(userID)
}

// TransferOwnership hands the organization to another user.
func (o *Organization) TransferOwnership(actor, newOwner shared.ID) error {
	if !o.IsOwner(actor) {
		return ErrNotOwner
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner is required", shared.ErrValidation)
	}
	o.ownerUserID = newOwner
	o.updatedAt = time.Now().UTC()
	return nil
}

// IsValidSlug checks if a slug is valid.
func IsValidSlug(slug string) bool {
	if len(slug) < 3 || len(slug) > 100 {
		return false
	}
	return slugRegex.MatchString(slug)
}

// GenerateSlug generates a slug from a name.
func GenerateSlug(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}

// Errors
var (
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found", shared.ErrNotFound)
	ErrSlugExists           = fmt.Errorf("%w: organization slug already taken", shared.ErrAlreadyExists)
	ErrNotOwner             = fmt.Errorf("%w: only the owner can do this", shared.ErrForbidden)
)
