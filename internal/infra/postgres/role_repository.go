package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

const roleColumns = `id, scope, organization_id, name, type, description, is_active, created_by, created_at, updated_at`

// countActiveAssignmentsQuery counts live system assignments plus role
// attachments of live collaborations. Role IDs are unique across scopes.
const countActiveAssignmentsQuery = `
	SELECT
		(SELECT COUNT(*) FROM user_system_roles
		 WHERE system_role_id = $1 AND is_active = TRUE)
		+
		(SELECT COUNT(*) FROM user_organization_roles uor
		 JOIN collaborations c ON c.id = uor.collaboration_id
		 WHERE uor.organization_role_id = $1 AND uor.is_active = TRUE AND c.is_active = TRUE)`

type roleTables struct {
	roles           string
	rolePermissions string
}

func tablesFor(scope permission.Scope) roleTables {
	if scope == permission.ScopeSystem {
		return roleTables{roles: "system_roles", rolePermissions: "system_role_permissions"}
	}
	return roleTables{roles: "organization_roles", rolePermissions: "organization_role_permissions"}
}

// RoleRepository implements role.Repository using PostgreSQL.
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create persists a new role and its permission attachments.
func (r *RoleRepository) Create(ctx context.Context, ro *role.Role) error {
	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		return insertRole(ctx, tx, ro)
	})
}

func insertRole(ctx context.Context, tx *sql.Tx, ro *role.Role) error {
	t := tablesFor(ro.Scope())

	var err error
	if ro.IsSystem() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO system_roles (id, name, type, description, is_active, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ro.ID().String(), ro.Name(), ro.Type().String(), ro.Description(),
			ro.IsActive(), nullID(ro.CreatedBy()), ro.CreatedAt(), ro.UpdatedAt(),
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO organization_roles (id, organization_id, name, type, description, is_active, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ro.ID().String(), nullID(ro.OrganizationID()), ro.Name(), ro.Type().String(), ro.Description(),
			ro.IsActive(), nullID(ro.CreatedBy()), ro.CreatedAt(), ro.UpdatedAt(),
		)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return role.ErrRoleTypeExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	return insertRolePermissionsBatch(ctx, tx, t.rolePermissions, ro.ID().String(), shared.IDStrings(ro.PermissionIDs()))
}

// GetByID retrieves a live role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id shared.ID) (*role.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM all_roles WHERE id = $1 AND deleted_at IS NULL`
	return r.getOne(ctx, query, id.String())
}

// GetByType retrieves a live role by type within its scope.
func (r *RoleRepository) GetByType(ctx context.Context, organizationID *shared.ID, t role.Type) (*role.Role, error) {
	if organizationID == nil {
		return r.getOne(ctx,
			`SELECT `+roleColumns+` FROM all_roles WHERE scope = 'system' AND type = $1 AND deleted_at IS NULL`,
			t.String())
	}
	return r.getOne(ctx,
		`SELECT `+roleColumns+` FROM all_roles WHERE organization_id = $1 AND type = $2 AND deleted_at IS NULL`,
		organizationID.String(), t.String())
}

func (r *RoleRepository) getOne(ctx context.Context, query string, args ...any) (*role.Role, error) {
	data, err := scanRoleData(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, role.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := r.getPermissionsBatch(ctx, data.scope, []string{data.id})
	if err != nil {
		return nil, err
	}
	return data.toRole(perms[data.id])
}

// ListSystem lists live system roles.
func (r *RoleRepository) ListSystem(ctx context.Context, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	w := &whereBuilder{}
	w.add("scope = 'system'")
	return r.list(ctx, permission.ScopeSystem, w, filter, page)
}

// ListForOrganization lists one organization's live roles.
func (r *RoleRepository) ListForOrganization(ctx context.Context, organizationID shared.ID, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	w := &whereBuilder{}
	w.add("organization_id = ?", organizationID.String())
	return r.list(ctx, permission.ScopeOrganization, w, filter, page)
}

func (r *RoleRepository) list(ctx context.Context, scope permission.Scope, w *whereBuilder, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	w.add("deleted_at IS NULL")
	if filter.Search != "" {
		w.addRepeated("(name ILIKE ? OR type ILIKE ?)", wrapLikePattern(filter.Search))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM all_roles`+w.clause(), w.args...).Scan(&total); err != nil {
		return pagination.Result[*role.Role]{}, fmt.Errorf("failed to count roles: %w", err)
	}

	args := append(w.args, page.Limit(), page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM all_roles%s%s LIMIT $%d OFFSET $%d`,
		roleColumns, w.clause(), orderByTypeAsc, len(w.args)+1, len(w.args)+2)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*role.Role]{}, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	// First pass: collect role data
	var datas []roleData
	var roleIDs []string
	for rows.Next() {
		data, err := scanRoleData(rows)
		if err != nil {
			return pagination.Result[*role.Role]{}, fmt.Errorf("failed to scan role: %w", err)
		}
		datas = append(datas, data)
		roleIDs = append(roleIDs, data.id)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*role.Role]{}, err
	}

	// Second pass: batch load permissions
	permsMap, err := r.getPermissionsBatch(ctx, scope, roleIDs)
	if err != nil {
		return pagination.Result[*role.Role]{}, err
	}

	roles := make([]*role.Role, 0, len(datas))
	for _, data := range datas {
		ro, err := data.toRole(permsMap[data.id])
		if err != nil {
			return pagination.Result[*role.Role]{}, err
		}
		roles = append(roles, ro)
	}
	return pagination.NewResult(roles, total, page), nil
}

// Update persists role fields, optionally replacing the permission set.
func (r *RoleRepository) Update(ctx context.Context, ro *role.Role, replacePermissions bool) error {
	t := tablesFor(ro.Scope())

	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		//nolint:gosec // G201: table names are constants
		query := fmt.Sprintf(`
			UPDATE %s
			SET name = $2, description = $3, is_active = $4, updated_at = $5
			WHERE id = $1 AND deleted_at IS NULL`, t.roles)

		result, err := tx.ExecContext(ctx, query,
			ro.ID().String(), ro.Name(), ro.Description(), ro.IsActive(), ro.UpdatedAt())
		if err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return role.ErrRoleNotFound
		}

		if !replacePermissions {
			return nil
		}

		//nolint:gosec // G201: table names are constants
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1`, t.rolePermissions), ro.ID().String()); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		return insertRolePermissionsBatch(ctx, tx, t.rolePermissions, ro.ID().String(), shared.IDStrings(ro.PermissionIDs()))
	})
}

// Delete soft-deletes a role that no active assignment references. The
// check and the delete run in one serializable transaction, so a concurrent
// assignment either lands first and blocks the delete or fails afterwards.
func (r *RoleRepository) Delete(ctx context.Context, id shared.ID) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t := tablesFor(existing.Scope())

	return r.db.Serializable(ctx, func(tx *sql.Tx) error {
		var locked string
		//nolint:gosec // G201: table names are constants
		lockQuery := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, t.roles)
		if err := tx.QueryRowContext(ctx, lockQuery, id.String()).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return role.ErrRoleNotFound
			}
			return fmt.Errorf("failed to lock role: %w", err)
		}

		var count int
		if err := tx.QueryRowContext(ctx, countActiveAssignmentsQuery, id.String()).Scan(&count); err != nil {
			return fmt.Errorf("failed to count role assignments: %w", err)
		}
		if count > 0 {
			return role.ErrRoleInUse
		}

		//nolint:gosec // G201: table names are constants
		query := fmt.Sprintf(`UPDATE %s SET is_active = FALSE, deleted_at = NOW(), updated_at = NOW() WHERE id = $1`, t.roles)
		if _, err := tx.ExecContext(ctx, query, id.String()); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
}

// ListPermissions returns the permissions attached to a role.
func (r *RoleRepository) ListPermissions(ctx context.Context, roleID shared.ID) ([]*permission.Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM all_permissions
		WHERE id IN (
			SELECT permission_id FROM system_role_permissions WHERE role_id = $1
			UNION ALL
			SELECT permission_id FROM organization_role_permissions WHERE role_id = $1
		)` + orderByTypeAsc

	rows, err := r.db.QueryContext(ctx, query, roleID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]*permission.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListAssignees returns the principals currently holding a role, through
// system assignments or live collaborations.
func (r *RoleRepository) ListAssignees(ctx context.Context, roleID shared.ID) ([]role.Assignee, error) {
	query := `
		SELECT u.id, u.email, u.name, 'system_assignment' AS source, NULL::uuid AS collaboration_id,
		       usr.assigned_by, usr.assigned_at, usr.expires_at
		FROM user_system_roles usr
		JOIN users u ON u.id = usr.user_id
		WHERE usr.system_role_id = $1 AND usr.is_active = TRUE
		  AND (usr.expires_at IS NULL OR usr.expires_at > NOW())
		UNION ALL
		SELECT u.id, u.email, u.name, 'collaboration' AS source, c.id,
		       uor.assigned_by, uor.assigned_at, NULL::timestamptz
		FROM user_organization_roles uor
		JOIN collaborations c ON c.id = uor.collaboration_id
		JOIN users u ON u.id = c.collaborator_id
		WHERE uor.organization_role_id = $1 AND uor.is_active = TRUE AND c.is_active = TRUE` +
		orderByAssignedAtDesc

	rows, err := r.db.QueryContext(ctx, query, roleID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignees: %w", err)
	}
	defer rows.Close()

	assignees := make([]role.Assignee, 0)
	for rows.Next() {
		var (
			a                    role.Assignee
			userID, source       string
			collabID, assignedBy sql.NullString
			expiresAt            sql.NullTime
		)
		if err := rows.Scan(&userID, &a.Email, &a.Name, &source, &collabID, &assignedBy, &a.AssignedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan role assignee: %w", err)
		}
		a.UserID, err = shared.IDFromString(userID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		a.Source = role.AssignmentSource(source)
		a.CollaborationID = parseNullID(collabID)
		a.AssignedBy = parseNullID(assignedBy)
		a.ExpiresAt = nullTimeValue(expiresAt)
		assignees = append(assignees, a)
	}
	return assignees, rows.Err()
}

// CountActiveAssignments counts active assignments referencing the role.
func (r *RoleRepository) CountActiveAssignments(ctx context.Context, roleID shared.ID) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, countActiveAssignmentsQuery, roleID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count role assignments: %w", err)
	}
	return count, nil
}

// getPermissionsBatch fetches permission IDs for several roles of one scope
// in a single query. Returns a map of roleID -> permission IDs.
func (r *RoleRepository) getPermissionsBatch(ctx context.Context, scope permission.Scope, roleIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}
	for _, id := range roleIDs {
		result[id] = []string{}
	}

	//nolint:gosec // G201: table names are constants
	query := fmt.Sprintf(`
		SELECT role_id, permission_id
		FROM %s
		WHERE role_id = ANY($1)
		ORDER BY role_id, permission_id`, tablesFor(scope).rolePermissions)

	rows, err := r.db.QueryContext(ctx, query, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID, permID string
		if err := rows.Scan(&roleID, &permID); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		result[roleID] = append(result[roleID], permID)
	}
	return result, rows.Err()
}

// insertRolePermissionsBatch attaches permissions to a role in a single query.
func insertRolePermissionsBatch(ctx context.Context, tx *sql.Tx, table, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}

	valueStrings := make([]string, len(permissionIDs))
	valueArgs := make([]any, len(permissionIDs)+1)
	valueArgs[0] = roleID
	for i, permID := range permissionIDs {
		valueStrings[i] = fmt.Sprintf("($1, $%d)", i+2)
		valueArgs[i+1] = permID
	}

	//nolint:gosec // G201: SQL formatting is safe - table is a constant and values are placeholders
	query := fmt.Sprintf(`INSERT INTO %s (role_id, permission_id) VALUES %s`, table, strings.Join(valueStrings, ", "))

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		if isForeignKeyViolation(err) {
			return role.ErrUnknownPermission
		}
		return fmt.Errorf("failed to batch insert role permissions: %w", err)
	}
	return nil
}

// roleData holds a scanned role row before its permissions are loaded.
type roleData struct {
	id          string
	scope       permission.Scope
	orgID       sql.NullString
	name        string
	roleType    string
	description string
	isActive    bool
	createdBy   sql.NullString
	createdAt   time.Time
	updatedAt   time.Time
}

func scanRoleData(row scanner) (roleData, error) {
	var d roleData
	var scope string
	err := row.Scan(&d.id, &scope, &d.orgID, &d.name, &d.roleType, &d.description,
		&d.isActive, &d.createdBy, &d.createdAt, &d.updatedAt)
	d.scope = permission.Scope(scope)
	return d, err
}

func (d roleData) toRole(permissionIDs []string) (*role.Role, error) {
	id, err := shared.IDFromString(d.id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}
	permIDs, err := shared.IDsFromStrings(permissionIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid role permission id: %w", err)
	}
	return role.Reconstitute(
		id, d.scope, parseNullID(d.orgID),
		d.name, role.Type(d.roleType), d.description, d.isActive,
		permIDs, parseNullID(d.createdBy), d.createdAt, d.updatedAt,
	), nil
}
