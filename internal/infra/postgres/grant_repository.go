package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// staleSystemRole is true when the existing row no longer authorizes.
const staleSystemRole = `(NOT user_system_roles.is_active
	OR (user_system_roles.expires_at IS NOT NULL AND user_system_roles.expires_at <= EXCLUDED.assigned_at))`

const staleDirectGrant = `(NOT user_permissions.is_active
	OR (user_permissions.expires_at IS NOT NULL AND user_permissions.expires_at <= EXCLUDED.granted_at))`

const directGrantColumns = `id, user_id, system_permission_id, organization_permission_id, organization_id,
	granted_by, granted_at, expires_at, is_active, revoked_by, revoked_at`

// GrantRepository implements grant.Repository using PostgreSQL.
// Stale rows are revived in place by an upsert guarded on staleness, so a
// concurrent duplicate either revives the row or gets no row back.
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new GrantRepository.
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// AssignSystemRole inserts or revives a system role assignment. The cycle a
// revival overwrites is archived to grant_revisions in the same statement.
func (r *GrantRepository) AssignSystemRole(ctx context.Context, a *grant.SystemRoleAssignment) error {
	query := `
		WITH archived AS (
			INSERT INTO grant_revisions (grant_table, grant_id, user_id, subject_id, granted_by, granted_at,
			                             expires_at, revoked_by, revoked_at, archived_at)
			SELECT 'user_system_roles', id, user_id, system_role_id, assigned_by, assigned_at,
			       expires_at, revoked_by, revoked_at, $5::timestamptz
			FROM user_system_roles
			WHERE user_id = $2::uuid AND system_role_id = $3::uuid
			  AND (NOT is_active OR (expires_at IS NOT NULL AND expires_at <= $5::timestamptz))
		)
		INSERT INTO user_system_roles (id, user_id, system_role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (user_id, system_role_id) DO UPDATE
		SET assigned_by = EXCLUDED.assigned_by,
		    assigned_at = EXCLUDED.assigned_at,
		    expires_at  = EXCLUDED.expires_at,
		    is_active   = TRUE,
		    revoked_by  = NULL,
		    revoked_at  = NULL
		WHERE ` + staleSystemRole + `
		RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		a.ID().String(), a.UserID().String(), a.RoleID().String(),
		nullID(a.AssignedBy()), a.AssignedAt(), nullTime(a.ExpiresAt()),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grant.ErrAssignmentExists
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user or role not found", shared.ErrNotFound)
		}
		return fmt.Errorf("failed to assign system role: %w", err)
	}

	return adoptID(id, a.SetID)
}

// RevokeSystemRole soft-revokes the active assignment of a role.
func (r *GrantRepository) RevokeSystemRole(ctx context.Context, userID, roleID shared.ID, revokedBy *shared.ID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_system_roles
		SET is_active = FALSE, revoked_by = $3, revoked_at = $4
		WHERE user_id = $1 AND system_role_id = $2 AND is_active = TRUE`,
		userID.String(), roleID.String(), nullID(revokedBy), at)
	if err != nil {
		return fmt.Errorf("failed to revoke system role: %w", err)
	}
	return expectOneRow(result, grant.ErrAssignmentNotFound)
}

// ListSystemRoleAssignments returns a user's assignments, active and historical.
func (r *GrantRepository) ListSystemRoleAssignments(ctx context.Context, userID shared.ID) ([]*grant.SystemRoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, system_role_id, assigned_by, assigned_at, expires_at, is_active, revoked_by, revoked_at
		FROM user_system_roles
		WHERE user_id = $1`+orderByAssignedAtDesc, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list system role assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*grant.SystemRoleAssignment, 0)
	for rows.Next() {
		var (
			id, uid, roleID       string
			assignedBy, revokedBy sql.NullString
			assignedAt            time.Time
			expiresAt, revokedAt  sql.NullTime
			isActive              bool
		)
		if err := rows.Scan(&id, &uid, &roleID, &assignedBy, &assignedAt, &expiresAt, &isActive, &revokedBy, &revokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system role assignment: %w", err)
		}
		ids, err := shared.IDsFromStrings([]string{id, uid, roleID})
		if err != nil {
			return nil, fmt.Errorf("invalid assignment id: %w", err)
		}
		assignments = append(assignments, grant.ReconstituteSystemRoleAssignment(
			ids[0], ids[1], ids[2],
			parseNullID(assignedBy), assignedAt, nullTimeValue(expiresAt),
			isActive, parseNullID(revokedBy), nullTimeValue(revokedAt),
		))
	}
	return assignments, rows.Err()
}

// GrantPermission inserts or revives a direct permission grant.
func (r *GrantRepository) GrantPermission(ctx context.Context, g *grant.DirectGrant) error {
	return upsertDirectGrant(ctx, r.db, g, true, nil)
}

// queryRower is satisfied by *DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// upsertDirectGrant writes a grant, reviving the row for the same pair and
// archiving the cycle it replaces. With onlyStale the revival is refused
// while the row is still effective. collaborationID links the row to the
// invitation that issued it; a plain grant clears the link.
func upsertDirectGrant(ctx context.Context, db queryRower, g *grant.DirectGrant, onlyStale bool, collaborationID *shared.ID) error {
	pair := `system_permission_id = $3::uuid`
	conflict := `ON CONFLICT (user_id, system_permission_id) WHERE system_permission_id IS NOT NULL`
	if g.SystemPermissionID() == nil {
		pair = `organization_permission_id = $4::uuid`
		conflict = `ON CONFLICT (user_id, organization_permission_id) WHERE organization_permission_id IS NOT NULL`
	}
	guard := ""
	if onlyStale {
		guard = ` WHERE ` + staleDirectGrant
	}

	query := `
		WITH archived AS (
			INSERT INTO grant_revisions (grant_table, grant_id, user_id, subject_id, granted_by, granted_at,
			                             expires_at, revoked_by, revoked_at, archived_at)
			SELECT 'user_permissions', id, user_id, COALESCE(system_permission_id, organization_permission_id),
			       granted_by, granted_at, expires_at, revoked_by, revoked_at, $7::timestamptz
			FROM user_permissions
			WHERE user_id = $2::uuid AND ` + pair + `
			  AND (NOT is_active OR (expires_at IS NOT NULL AND expires_at <= $7::timestamptz))
		)
		INSERT INTO user_permissions (id, user_id, system_permission_id, organization_permission_id, organization_id,
		                              granted_by, granted_at, expires_at, is_active, collaboration_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
		` + conflict + ` DO UPDATE
		SET granted_by       = EXCLUDED.granted_by,
		    granted_at       = EXCLUDED.granted_at,
		    expires_at       = EXCLUDED.expires_at,
		    is_active        = TRUE,
		    revoked_by       = NULL,
		    revoked_at       = NULL,
		    collaboration_id = EXCLUDED.collaboration_id` + guard + `
		RETURNING id`

	var id string
	err := db.QueryRowContext(ctx, query,
		g.ID().String(), g.UserID().String(),
		nullID(g.SystemPermissionID()), nullID(g.OrganizationPermissionID()), nullID(g.OrganizationID()),
		nullID(g.GrantedBy()), g.GrantedAt(), nullTime(g.ExpiresAt()), nullID(collaborationID),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grant.ErrGrantExists
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user or permission not found", shared.ErrNotFound)
		}
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	return adoptID(id, g.SetID)
}

// RevokePermission soft-revokes the active grant of a permission of either scope.
func (r *GrantRepository) RevokePermission(ctx context.Context, userID, permissionID shared.ID, revokedBy *shared.ID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_permissions
		SET is_active = FALSE, revoked_by = $3, revoked_at = $4
		WHERE user_id = $1
		  AND (system_permission_id = $2 OR organization_permission_id = $2)
		  AND is_active = TRUE`,
		userID.String(), permissionID.String(), nullID(revokedBy), at)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return expectOneRow(result, grant.ErrGrantNotFound)
}

// ListDirectGrants returns a user's direct grants, active and historical.
func (r *GrantRepository) ListDirectGrants(ctx context.Context, userID shared.ID) ([]*grant.DirectGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+directGrantColumns+`
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY granted_at DESC`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list direct grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*grant.DirectGrant, 0)
	for rows.Next() {
		g, err := scanDirectGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan direct grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanDirectGrant(row scanner) (*grant.DirectGrant, error) {
	var (
		id, uid                     string
		sysPermID, orgPermID, orgID sql.NullString
		grantedBy, revokedBy        sql.NullString
		grantedAt                   time.Time
		expiresAt, revokedAt        sql.NullTime
		isActive                    bool
	)
	if err := row.Scan(&id, &uid, &sysPermID, &orgPermID, &orgID,
		&grantedBy, &grantedAt, &expiresAt, &isActive, &revokedBy, &revokedAt); err != nil {
		return nil, err
	}
	ids, err := shared.IDsFromStrings([]string{id, uid})
	if err != nil {
		return nil, fmt.Errorf("invalid grant id: %w", err)
	}
	return grant.ReconstituteDirectGrant(
		ids[0], ids[1],
		parseNullID(sysPermID), parseNullID(orgPermID), parseNullID(orgID),
		parseNullID(grantedBy), grantedAt, nullTimeValue(expiresAt),
		isActive, parseNullID(revokedBy), nullTimeValue(revokedAt),
	), nil
}

func adoptID(raw string, set func(shared.ID)) error {
	id, err := shared.IDFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid returned id: %w", err)
	}
	set(id)
	return nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
