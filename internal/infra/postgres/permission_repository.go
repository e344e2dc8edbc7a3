package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

const permissionColumns = `id, scope, organization_id, name, type, description, resource, action, is_active, created_at, updated_at`

// PermissionRepository implements permission.Repository using PostgreSQL.
// Reads go through the all_permissions view; writes target the scope table.
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Create inserts a permission into its scope table.
func (r *PermissionRepository) Create(ctx context.Context, p *permission.Permission) error {
	return insertPermission(ctx, r.db, p)
}

// execer is satisfied by *DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPermission(ctx context.Context, db execer, p *permission.Permission) error {
	var err error
	if p.IsSystem() {
		_, err = db.ExecContext(ctx, `
			INSERT INTO system_permissions (id, name, type, description, resource, action, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID().String(), p.Name(), p.Type().String(), p.Description(),
			p.Resource(), p.Action(), p.IsActive(), p.CreatedAt(), p.UpdatedAt(),
		)
	} else {
		_, err = db.ExecContext(ctx, `
			INSERT INTO organization_permissions (id, organization_id, name, type, description, resource, action, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID().String(), nullID(p.OrganizationID()), p.Name(), p.Type().String(), p.Description(),
			p.Resource(), p.Action(), p.IsActive(), p.CreatedAt(), p.UpdatedAt(),
		)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return permission.ErrPermissionTypeExists
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: organization not found", shared.ErrNotFound)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetByID retrieves a permission of either scope.
func (r *PermissionRepository) GetByID(ctx context.Context, id shared.ID) (*permission.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM all_permissions WHERE id = $1`

	p, err := scanPermission(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permission.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// GetByIDs retrieves several permissions in one query.
func (r *PermissionRepository) GetByIDs(ctx context.Context, ids []shared.ID) ([]*permission.Permission, error) {
	if len(ids) == 0 {
		return []*permission.Permission{}, nil
	}

	query := `SELECT ` + permissionColumns + ` FROM all_permissions WHERE id = ANY($1)` + orderByTypeAsc
	return r.queryPermissions(ctx, query, pq.Array(shared.IDStrings(ids)))
}

// GetByType retrieves a permission by type within its scope.
func (r *PermissionRepository) GetByType(ctx context.Context, organizationID *shared.ID, t permission.Type) (*permission.Permission, error) {
	var row *sql.Row
	if organizationID == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+permissionColumns+` FROM all_permissions WHERE scope = 'system' AND type = $1`,
			t.String())
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+permissionColumns+` FROM all_permissions WHERE organization_id = $1 AND type = $2`,
			organizationID.String(), t.String())
	}

	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permission.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission by type: %w", err)
	}
	return p, nil
}

// ListSystem lists system permissions.
func (r *PermissionRepository) ListSystem(ctx context.Context, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	w := &whereBuilder{}
	w.add("scope = 'system'")
	return r.list(ctx, w, filter, page)
}

// ListForOrganization lists one organization's permissions.
func (r *PermissionRepository) ListForOrganization(ctx context.Context, organizationID shared.ID, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	w := &whereBuilder{}
	w.add("organization_id = ?", organizationID.String())
	return r.list(ctx, w, filter, page)
}

func (r *PermissionRepository) list(ctx context.Context, w *whereBuilder, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	if filter.Search != "" {
		w.addRepeated("(name ILIKE ? OR type ILIKE ?)", wrapLikePattern(filter.Search))
	}
	if filter.Resource != "" {
		w.add("resource = ?", filter.Resource)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM all_permissions` + w.clause()
	if err := r.db.QueryRowContext(ctx, countQuery, w.args...).Scan(&total); err != nil {
		return pagination.Result[*permission.Permission]{}, fmt.Errorf("failed to count permissions: %w", err)
	}

	args := append(w.args, page.Limit(), page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM all_permissions%s%s LIMIT $%d OFFSET $%d`,
		permissionColumns, w.clause(), orderByTypeAsc, len(w.args)+1, len(w.args)+2)

	perms, err := r.queryPermissions(ctx, query, args...)
	if err != nil {
		return pagination.Result[*permission.Permission]{}, err
	}
	return pagination.NewResult(perms, total, page), nil
}

// ListActiveTypes returns every active type owned by an organization.
func (r *PermissionRepository) ListActiveTypes(ctx context.Context, organizationID shared.ID) ([]permission.Type, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type FROM organization_permissions
		WHERE organization_id = $1 AND is_active = TRUE
		ORDER BY type`, organizationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list permission types: %w", err)
	}
	defer rows.Close()

	types := make([]permission.Type, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan permission type: %w", err)
		}
		types = append(types, permission.Type(t))
	}
	return types, rows.Err()
}

// Update persists the mutable fields of a permission.
func (r *PermissionRepository) Update(ctx context.Context, p *permission.Permission) error {
	table := "system_permissions"
	if !p.IsSystem() {
		table = "organization_permissions"
	}

	//nolint:gosec // G201: table is one of two constants
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $2, description = $3, resource = $4, action = $5, is_active = $6, updated_at = $7
		WHERE id = $1`, table)

	result, err := r.db.ExecContext(ctx, query,
		p.ID().String(), p.Name(), p.Description(), p.Resource(), p.Action(), p.IsActive(), p.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return permission.ErrPermissionNotFound
	}
	return nil
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, query string, args ...any) ([]*permission.Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
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

func scanPermission(row scanner) (*permission.Permission, error) {
	var (
		id, scope, name, permType, description string
		resource, action                       string
		orgID                                  sql.NullString
		isActive                               bool
		createdAt, updatedAt                   time.Time
	)
	if err := row.Scan(&id, &scope, &orgID, &name, &permType, &description,
		&resource, &action, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsedID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid permission id: %w", err)
	}

	return permission.Reconstitute(
		parsedID, permission.Scope(scope), parseNullID(orgID),
		name, permission.Type(permType), description, resource, action,
		isActive, createdAt, updatedAt,
	), nil
}
