package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

const collaborationSelect = `
	SELECT c.id, c.collaborator_id, c.organization_id, c.email, u.name, c.status,
	       c.invited_by, c.invited_at, c.accepted_at, c.expires_at, c.is_active, c.updated_at
	FROM collaborations c
	JOIN users u ON u.id = c.collaborator_id`

var collaborationSortFields = map[string]string{
	"invited_at":  "c.invited_at",
	"accepted_at": "c.accepted_at",
	"email":       "c.email",
	"status":      "c.status",
	"name":        "u.name",
}

// CollaborationRepository implements collaboration.Repository using PostgreSQL.
// Every write applies the accompanying grant changes in the same
// serializable transaction.
type CollaborationRepository struct {
	db *DB
}

// NewCollaborationRepository creates a new CollaborationRepository.
func NewCollaborationRepository(db *DB) *CollaborationRepository {
	return &CollaborationRepository{db: db}
}

// Create inserts a collaboration and its initial grant bundle.
func (r *CollaborationRepository) Create(ctx context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collaborations (id, collaborator_id, organization_id, email, status,
			                            invited_by, invited_at, accepted_at, expires_at, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID().String(), c.CollaboratorID().String(), c.OrganizationID().String(), c.Email(), c.Status().String(),
			c.InvitedBy().String(), c.InvitedAt(), nullTime(c.AcceptedAt()), nullTime(c.ExpiresAt()),
			c.IsActive(), c.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return collaboration.ErrCollaborationExists
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: user or organization not found", shared.ErrNotFound)
			}
			return fmt.Errorf("failed to create collaboration: %w", err)
		}
		return applyGrantChanges(ctx, tx, c, changes)
	})
}

// Revive rewrites a removed collaboration as a fresh invitation.
func (r *CollaborationRepository) Revive(ctx context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE collaborations
			SET email = $2, status = $3, invited_by = $4, invited_at = $5,
			    accepted_at = NULL, expires_at = $6, is_active = TRUE, updated_at = $7
			WHERE id = $1 AND is_active = FALSE`,
			c.ID().String(), c.Email(), c.Status().String(), c.InvitedBy().String(), c.InvitedAt(),
			nullTime(c.ExpiresAt()), c.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to revive collaboration: %w", err)
		}
		if err := expectOneRow(result, collaboration.ErrCollaborationExists); err != nil {
			return err
		}
		return applyGrantChanges(ctx, tx, c, changes)
	})
}

// Update persists state changes and applies the grant changes.
func (r *CollaborationRepository) Update(ctx context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE collaborations
			SET status = $2, accepted_at = $3, expires_at = $4, is_active = $5, updated_at = $6
			WHERE id = $1`,
			c.ID().String(), c.Status().String(), nullTime(c.AcceptedAt()), nullTime(c.ExpiresAt()),
			c.IsActive(), c.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to update collaboration: %w", err)
		}
		if err := expectOneRow(result, collaboration.ErrCollaborationNotFound); err != nil {
			return err
		}
		return applyGrantChanges(ctx, tx, c, changes)
	})
}

// applyGrantChanges rewrites the role attachment and the organization-scoped
// direct grants of a collaboration inside tx.
func applyGrantChanges(ctx context.Context, tx *sql.Tx, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	if changes.IsEmpty() {
		return nil
	}
	at := c.UpdatedAt()

	if changes.ReplaceRole {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_organization_roles SET is_active = FALSE
			WHERE collaboration_id = $1 AND is_active = TRUE`, c.ID().String()); err != nil {
			return fmt.Errorf("failed to detach collaboration role: %w", err)
		}
		if a := changes.Role; a != nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_organization_roles (id, collaboration_id, organization_role_id, assigned_by, assigned_at, is_active)
				VALUES ($1, $2, $3, $4, $5, TRUE)`,
				a.ID().String(), a.CollaborationID().String(), a.RoleID().String(), nullID(a.AssignedBy()), a.AssignedAt(),
			)
			if err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: organization role not found", shared.ErrNotFound)
				}
				return fmt.Errorf("failed to attach collaboration role: %w", err)
			}
		}
	}

	if changes.ReplaceDirectGrants {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_permissions
			SET is_active = FALSE, revoked_by = $3, revoked_at = $4
			WHERE user_id = $1 AND organization_id = $2 AND is_active = TRUE`,
			c.CollaboratorID().String(), c.OrganizationID().String(), nullID(changes.Actor), at); err != nil {
			return fmt.Errorf("failed to revoke collaboration grants: %w", err)
		}
	} else if changes.RevokeIssuedGrants {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_permissions
			SET is_active = FALSE, revoked_by = $2, revoked_at = $3
			WHERE collaboration_id = $1 AND is_active = TRUE`,
			c.ID().String(), nullID(changes.Actor), at); err != nil {
			return fmt.Errorf("failed to revoke invitation grants: %w", err)
		}
	}

	collaborationID := c.ID()
	for _, g := range changes.DirectGrants {
		// After a replace every live row of the pair is revoked, so revival
		// is unconditional. Otherwise a live grant is kept as it is.
		err := upsertDirectGrant(ctx, tx, g, !changes.ReplaceDirectGrants, &collaborationID)
		if err != nil && !errors.Is(err, grant.ErrGrantExists) {
			return err
		}
	}
	return nil
}

// GetByID retrieves a collaboration.
func (r *CollaborationRepository) GetByID(ctx context.Context, id shared.ID) (*collaboration.Collaboration, error) {
	return r.getOne(ctx, collaborationSelect+` WHERE c.id = $1`, id.String())
}

// GetByPair retrieves the collaboration of a user with an organization.
func (r *CollaborationRepository) GetByPair(ctx context.Context, collaboratorID, organizationID shared.ID) (*collaboration.Collaboration, error) {
	return r.getOne(ctx, collaborationSelect+` WHERE c.collaborator_id = $1 AND c.organization_id = $2`,
		collaboratorID.String(), organizationID.String())
}

func (r *CollaborationRepository) getOne(ctx context.Context, query string, args ...any) (*collaboration.Collaboration, error) {
	c, err := scanCollaboration(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, collaboration.ErrCollaborationNotFound
		}
		return nil, fmt.Errorf("failed to get collaboration: %w", err)
	}
	return c, nil
}

// List lists an organization's collaborations.
func (r *CollaborationRepository) List(ctx context.Context, organizationID shared.ID, filter collaboration.Filter, page pagination.Pagination) (pagination.Result[*collaboration.Collaboration], error) {
	w := &whereBuilder{}
	w.add("c.organization_id = ?", organizationID.String())
	if filter.Status != nil {
		w.add("c.status = ?", filter.Status.String())
	}
	if filter.IsActive != nil {
		w.add("c.is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		w.addRepeated("(c.email ILIKE ? OR u.name ILIKE ?)", wrapLikePattern(filter.Search))
	}
	if filter.RoleID != nil {
		w.add(`EXISTS (
			SELECT 1 FROM user_organization_roles uor
			WHERE uor.collaboration_id = c.id AND uor.organization_role_id = ? AND uor.is_active = TRUE)`,
			filter.RoleID.String())
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM collaborations c JOIN users u ON u.id = c.collaborator_id` + w.clause()
	if err := r.db.QueryRowContext(ctx, countQuery, w.args...).Scan(&total); err != nil {
		return pagination.Result[*collaboration.Collaboration]{}, fmt.Errorf("failed to count collaborations: %w", err)
	}

	orderBy := pagination.NewSortOption(collaborationSortFields).Parse(filter.Sort).SQL(orderByInvitedAtDesc)
	args := append(w.args, page.Limit(), page.Offset())
	//nolint:gosec // G201: ORDER BY columns come from a whitelist
	query := fmt.Sprintf(`%s%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		collaborationSelect, w.clause(), orderBy, len(w.args)+1, len(w.args)+2)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*collaboration.Collaboration]{}, fmt.Errorf("failed to list collaborations: %w", err)
	}
	defer rows.Close()

	items := make([]*collaboration.Collaboration, 0)
	for rows.Next() {
		c, err := scanCollaboration(rows)
		if err != nil {
			return pagination.Result[*collaboration.Collaboration]{}, fmt.Errorf("failed to scan collaboration: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*collaboration.Collaboration]{}, err
	}
	return pagination.NewResult(items, total, page), nil
}

// ListRoleAttachments returns the attachments of a collaboration, newest first.
func (r *CollaborationRepository) ListRoleAttachments(ctx context.Context, collaborationID shared.ID) ([]*grant.RoleAttachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, collaboration_id, organization_role_id, assigned_by, assigned_at, is_active
		FROM user_organization_roles
		WHERE collaboration_id = $1`+orderByAssignedAtDesc, collaborationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list role attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*grant.RoleAttachment, 0)
	for rows.Next() {
		var (
			id, collabID, roleID string
			assignedBy           sql.NullString
			assignedAt           time.Time
			isActive             bool
		)
		if err := rows.Scan(&id, &collabID, &roleID, &assignedBy, &assignedAt, &isActive); err != nil {
			return nil, fmt.Errorf("failed to scan role attachment: %w", err)
		}
		ids, err := shared.IDsFromStrings([]string{id, collabID, roleID})
		if err != nil {
			return nil, fmt.Errorf("invalid role attachment id: %w", err)
		}
		attachments = append(attachments, grant.ReconstituteRoleAttachment(
			ids[0], ids[1], ids[2], parseNullID(assignedBy), assignedAt, isActive))
	}
	return attachments, rows.Err()
}

func scanCollaboration(row scanner) (*collaboration.Collaboration, error) {
	var (
		id, collaboratorID, orgID, invitedBy string
		email, name, status                  string
		invitedAt, updatedAt                 time.Time
		acceptedAt, expiresAt                sql.NullTime
		isActive                             bool
	)
	if err := row.Scan(&id, &collaboratorID, &orgID, &email, &name, &status,
		&invitedBy, &invitedAt, &acceptedAt, &expiresAt, &isActive, &updatedAt); err != nil {
		return nil, err
	}
	ids, err := shared.IDsFromStrings([]string{id, collaboratorID, orgID, invitedBy})
	if err != nil {
		return nil, fmt.Errorf("invalid collaboration id: %w", err)
	}
	return collaboration.Reconstitute(
		ids[0], ids[1], ids[2], email, name, collaboration.Status(status),
		ids[3], invitedAt, nullTimeValue(acceptedAt), nullTimeValue(expiresAt),
		isActive, updatedAt,
	), nil
}
