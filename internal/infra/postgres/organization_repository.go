package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

const organizationColumns = `id, name, slug, owner_user_id, created_at, updated_at`

// OrganizationRepository implements organization.Repository using PostgreSQL.
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts the organization and its seed permissions atomically.
func (r *OrganizationRepository) Create(ctx context.Context, o *organization.Organization, seed []*permission.Permission) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organizations (`+organizationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID().String(), o.Name(), o.Slug(), o.OwnerUserID().String(), o.CreatedAt(), o.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return organization.ErrSlugExists
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: owner not found", shared.ErrNotFound)
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}

		for _, p := range seed {
			if err := insertPermission(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an organization by its ID.
func (r *OrganizationRepository) GetByID(ctx context.Context, id shared.ID) (*organization.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id.String())
}

// GetBySlug retrieves an organization by its slug.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
}

func (r *OrganizationRepository) getOne(ctx context.Context, query string, args ...any) (*organization.Organization, error) {
	var (
		id, name, slug, owner string
		createdAt, updatedAt  time.Time
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&id, &name, &slug, &owner, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	ids, err := shared.IDsFromStrings([]string{id, owner})
	if err != nil {
		return nil, fmt.Errorf("invalid organization id: %w", err)
	}
	return organization.Reconstitute(ids[0], name, slug, ids[1], createdAt, updatedAt), nil
}

// UpdateOwner persists an ownership transfer.
func (r *OrganizationRepository) UpdateOwner(ctx context.Context, o *organization.Organization) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET owner_user_id = $2, updated_at = $3 WHERE id = $1`,
		o.ID().String(), o.OwnerUserID().String(), o.UpdatedAt())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: new owner not found", shared.ErrNotFound)
		}
		return fmt.Errorf("failed to update organization owner: %w", err)
	}
	return expectOneRow(result, organization.ErrOrganizationNotFound)
}

// OwnerOf returns the owner of an organization.
func (r *OrganizationRepository) OwnerOf(ctx context.Context, id shared.ID) (shared.ID, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_user_id FROM organizations WHERE id = $1`, id.String()).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ID{}, organization.ErrOrganizationNotFound
		}
		return shared.ID{}, fmt.Errorf("failed to get organization owner: %w", err)
	}
	return shared.IDFromString(owner)
}
