package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

// Fragments shared by the existence checks and the provenance listings.
// Every joined row must be live: assignment, role and permission.
const (
	systemRolePath = `
		FROM user_system_roles usr
		JOIN system_roles r ON r.id = usr.system_role_id
		JOIN system_role_permissions rp ON rp.role_id = r.id
		JOIN system_permissions p ON p.id = rp.permission_id
		WHERE usr.user_id = $1
		  AND usr.is_active = TRUE
		  AND (usr.expires_at IS NULL OR usr.expires_at > $2)
		  AND r.is_active = TRUE AND r.deleted_at IS NULL
		  AND p.is_active = TRUE`

	directSystemPath = `
		FROM user_permissions up
		JOIN system_permissions p ON p.id = up.system_permission_id
		WHERE up.user_id = $1
		  AND up.is_active = TRUE
		  AND (up.expires_at IS NULL OR up.expires_at > $2)
		  AND p.is_active = TRUE`

	organizationRolePath = `
		FROM collaborations c
		JOIN user_organization_roles uor ON uor.collaboration_id = c.id AND uor.is_active = TRUE
		JOIN organization_roles r ON r.id = uor.organization_role_id
		JOIN organization_role_permissions rp ON rp.role_id = r.id
		JOIN organization_permissions p ON p.id = rp.permission_id
		WHERE c.collaborator_id = $1
		  AND c.organization_id = $2
		  AND c.is_active = TRUE AND c.status = 'accepted'
		  AND r.is_active = TRUE AND r.deleted_at IS NULL
		  AND p.is_active = TRUE AND p.organization_id = c.organization_id`

	directOrganizationPath = `
		FROM user_permissions up
		JOIN organization_permissions p ON p.id = up.organization_permission_id
		WHERE up.user_id = $1
		  AND up.organization_id = $2
		  AND up.is_active = TRUE
		  AND (up.expires_at IS NULL OR up.expires_at > $3)
		  AND p.is_active = TRUE`
)

// AccessControlRepository implements accesscontrol.AuthorityReader using
// PostgreSQL. Each check is a single EXISTS query.
type AccessControlRepository struct {
	db *DB
}

// NewAccessControlRepository creates a new AccessControlRepository.
func NewAccessControlRepository(db *DB) *AccessControlRepository {
	return &AccessControlRepository{db: db}
}

// HasSystemRolePermission checks role-sourced system authority.
func (r *AccessControlRepository) HasSystemRolePermission(ctx context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error) {
	return r.exists(ctx, "system role permission",
		`SELECT EXISTS (SELECT 1 `+systemRolePath+` AND p.type = $3)`,
		userID.String(), at, t.String())
}

// HasDirectSystemPermission checks directly granted system authority.
func (r *AccessControlRepository) HasDirectSystemPermission(ctx context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error) {
	return r.exists(ctx, "direct system permission",
		`SELECT EXISTS (SELECT 1 `+directSystemPath+` AND p.type = $3)`,
		userID.String(), at, t.String())
}

// HasOrganizationRolePermission checks collaboration role authority.
func (r *AccessControlRepository) HasOrganizationRolePermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type) (bool, error) {
	return r.exists(ctx, "organization role permission",
		`SELECT EXISTS (SELECT 1 `+organizationRolePath+` AND p.type = $3)`,
		userID.String(), organizationID.String(), t.String())
}

// HasDirectOrganizationPermission checks directly granted organization authority.
func (r *AccessControlRepository) HasDirectOrganizationPermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type, at time.Time) (bool, error) {
	return r.exists(ctx, "direct organization permission",
		`SELECT EXISTS (SELECT 1 `+directOrganizationPath+` AND p.type = $4)`,
		userID.String(), organizationID.String(), at, t.String())
}

func (r *AccessControlRepository) exists(ctx context.Context, what, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", what, err)
	}
	return ok, nil
}

// SystemPermissionSources lists every system permission the user holds.
func (r *AccessControlRepository) SystemPermissionSources(ctx context.Context, userID shared.ID, at time.Time) ([]accesscontrol.PermissionSource, error) {
	query := `
		SELECT p.type, 'system_role', r.id, r.name ` + systemRolePath + `
		UNION ALL
		SELECT p.type, 'direct', up.id, p.name ` + directSystemPath + `
		ORDER BY 1, 2`
	return r.sources(ctx, query, userID.String(), at)
}

// OrganizationPermissionSources lists every organization permission the
// user holds in one organization.
func (r *AccessControlRepository) OrganizationPermissionSources(ctx context.Context, userID, organizationID shared.ID, at time.Time) ([]accesscontrol.PermissionSource, error) {
	query := `
		SELECT p.type, 'organization_role', r.id, r.name ` + organizationRolePath + `
		UNION ALL
		SELECT p.type, 'direct', up.id, p.name ` + directOrganizationPath + `
		ORDER BY 1, 2`
	return r.sources(ctx, query, userID.String(), organizationID.String(), at)
}

func (r *AccessControlRepository) sources(ctx context.Context, query string, args ...any) ([]accesscontrol.PermissionSource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission sources: %w", err)
	}
	defer rows.Close()

	out := make([]accesscontrol.PermissionSource, 0)
	for rows.Next() {
		var permType, source, sourceID, sourceName string
		if err := rows.Scan(&permType, &source, &sourceID, &sourceName); err != nil {
			return nil, fmt.Errorf("failed to scan permission source: %w", err)
		}
		id, err := shared.IDFromString(sourceID)
		if err != nil {
			return nil, fmt.Errorf("invalid source id: %w", err)
		}
		out = append(out, accesscontrol.PermissionSource{
			Type:       permission.Type(permType),
			Source:     accesscontrol.Source(source),
			SourceID:   id,
			SourceName: sourceName,
		})
	}
	return out, rows.Err()
}
