// Package collaboration models the relationship between an external
// user and an organization. The collaboration is the only bridge through
// which organization roles reach a user.
package collaboration

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// DefaultInvitationExpiry applies when an invite does not set an expiry.
const DefaultInvitationExpiry = 7 * 24 * time.Hour

// Status is the invitation state of a collaboration.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(s))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid collaboration status %q", shared.ErrValidation, s)
	}
	return st, nil
}

// Collaboration represents one user's relationship to one organization.
type Collaboration struct {
	id               shared.ID
	collaboratorID   shared.ID
	organizationID   shared.ID
	email            string
	collaboratorName string // populated from the users table
	status           Status
	invitedBy        shared.ID
	invitedAt        time.Time
	acceptedAt       *time.Time
	expiresAt        *time.Time
	isActive         bool
	updatedAt        time.Time
}

// New creates a pending collaboration.
func New(organizationID, collaboratorID shared.ID, email string, invitedBy shared.ID, expiresAt *time.Time, at time.Time) (*Collaboration, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organization id is required", shared.ErrValidation)
	}
	if collaboratorID.IsZero() {
		return nil, fmt.Errorf("%w: collaborator id is required", shared.ErrValidation)
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if invitedBy.IsZero() {
		return nil, fmt.Errorf("%w: invited by is required", shared.ErrValidation)
	}
	exp, err := resolveExpiry(expiresAt, at)
	if err != nil {
		return nil, err
	}

	return &Collaboration{
		id:             shared.NewID(),
		collaboratorID: collaboratorID,
		organizationID: organizationID,
		email:          email,
		status:         StatusPending,
		invitedBy:      invitedBy,
		invitedAt:      at,
		expiresAt:      exp,
		isActive:       true,
		updatedAt:      at,
	}, nil
}

// Reconstitute recreates a collaboration from persistence.
func Reconstitute(
	id, collaboratorID, organizationID shared.ID,
	email, collaboratorName string,
	status Status,
	invitedBy shared.ID,
	invitedAt time.Time,
	acceptedAt, expiresAt *time.Time,
	isActive bool,
	updatedAt time.Time,
) *Collaboration {
	return &Collaboration{
		id:               id,
		collaboratorID:   collaboratorID,
		organizationID:   organizationID,
		email:            email,
		collaboratorName: collaboratorName,
		status:           status,
		invitedBy:        invitedBy,
		invitedAt:        invitedAt,
		acceptedAt:       acceptedAt,
		expiresAt:        expiresAt,
		isActive:         isActive,
		updatedAt:        updatedAt,
	}
}

func resolveExpiry(expiresAt *time.Time, at time.Time) (*time.Time, error) {
	if expiresAt == nil {
		exp := at.Add(DefaultInvitationExpiry)
		return &exp, nil
	}
	if !expiresAt.After(at) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", shared.ErrValidation)
	}
	exp := *expiresAt
	return &exp, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ID returns the collaboration ID.
func (c *Collaboration) ID() shared.ID { return c.id }

// CollaboratorID returns the user holding the collaboration.
func (c *Collaboration) CollaboratorID() shared.ID { return c.collaboratorID }

// OrganizationID returns the organization.
func (c *Collaboration) OrganizationID() shared.ID { return c.organizationID }

// Email returns the invited email.
func (c *Collaboration) Email() string { return c.email }

// CollaboratorName returns the collaborator's display name, if loaded.
func (c *Collaboration) CollaboratorName() string { return c.collaboratorName }

// Status returns the invitation status.
func (c *Collaboration) Status() Status { return c.status }

// InvitedBy returns who sent the (latest) invitation.
func (c *Collaboration) InvitedBy() shared.ID { return c.invitedBy }

// InvitedAt returns when the (latest) invitation was sent.
func (c *Collaboration) InvitedAt() time.Time { return c.invitedAt }

// AcceptedAt returns when the invitation was accepted.
func (c *Collaboration) AcceptedAt() *time.Time { return c.acceptedAt }

// ExpiresAt returns the invitation deadline.
func (c *Collaboration) ExpiresAt() *time.Time { return c.expiresAt }

// IsActive reports whether the collaboration is live.
func (c *Collaboration) IsActive() bool { return c.isActive }

// UpdatedAt returns when the collaboration last changed.
func (c *Collaboration) UpdatedAt() time.Time { return c.updatedAt }

// IsExpired reports whether the invitation deadline has passed.
func (c *Collaboration) IsExpired(at time.Time) bool {
	return c.expiresAt != nil && !c.expiresAt.After(at)
}

// GrantsAuthority reports whether roles attached to this collaboration count.
// Only live, accepted collaborations carry role-sourced authority.
func (c *Collaboration) GrantsAuthority() bool {
	return c.isActive && c.status == StatusAccepted
}

// Revive resets a stale collaboration to a fresh pending invitation.
func (c *Collaboration) Revive(invitedBy shared.ID, expiresAt *time.Time, at time.Time) error {
	if c.isActive {
		return ErrCollaborationExists
	}
	exp, err := resolveExpiry(expiresAt, at)
	if err != nil {
		return err
	}
	c.status = StatusPending
	c.invitedBy = invitedBy
	c.invitedAt = at
	c.acceptedAt = nil
	c.expiresAt = exp
	c.isActive = true
	c.updatedAt = at
	return nil
}

// Accept marks the invitation accepted by its collaborator.
func (c *Collaboration) Accept(userID shared.ID, at time.Time) error {
	if err := c.checkRespondable(userID, at); err != nil {
		return err
	}
	c.status = StatusAccepted
	c.acceptedAt = &at
	c.updatedAt = at
	return nil
}

// Reject marks the invitation declined by its collaborator.
func (c *Collaboration) Reject(userID shared.ID, at time.Time) error {
	if err := c.checkRespondable(userID, at); err != nil {
		return err
	}
	c.status = StatusRejected
	c.updatedAt = at
	return nil
}

func (c *Collaboration) checkRespondable(userID shared.ID, at time.Time) error {
	if !c.collaboratorID.Equals(userID) {
		return ErrNotCollaborator
	}
	if !c.isActive {
		return fmt.Errorf("%w: collaboration has been removed", shared.ErrValidation)
	}
	if c.status != StatusPending {
		return fmt.Errorf("%w: invitation already %s", shared.ErrValidation, c.status)
	}
	if c.IsExpired(at) {
		return ErrInvitationExpired
	}
	return nil
}

// SetActive toggles the live flag.
func (c *Collaboration) SetActive(active bool, at time.Time) {
	c.isActive = active
	c.updatedAt = at
}

// Errors
var (
	ErrCollaborationNotFound = fmt.Errorf("%w: collaboration not found", shared.ErrNotFound)
	ErrCollaborationExists   = fmt.Errorf("%w: an active collaboration already exists for this user and organization", shared.ErrConflict)
	ErrNotCollaborator       = fmt.Errorf("%w: invitation belongs to another user", shared.ErrUnauthorized)
	ErrInvitationExpired     = fmt.Errorf("%w: invitation has expired", shared.ErrValidation)
)
