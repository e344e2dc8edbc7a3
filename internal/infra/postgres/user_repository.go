package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
)

// userColumns is the list of columns to select for a user.
const userColumns = `id, external_id, email, name, is_placeholder, created_at, updated_at`

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	var externalID sql.NullString
	if id := u.ExternalID(); id != nil {
		externalID = sql.NullString{String: *id, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID().String(), externalID, u.Email(), u.Name(), u.IsPlaceholder(), u.CreatedAt(), u.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id shared.ID) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email))
}

// GetByIDs retrieves several users in one query. Unknown IDs are omitted.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []shared.ID) ([]*user.User, error) {
	if len(ids) == 0 {
		return []*user.User{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY email`,
		pq.Array(shared.IDStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertFromIdentity resolves the local user of an authenticated identity.
// A known identity is returned as is. Otherwise the user with the same email
// is claimed (a placeholder becomes a real user) or a new user is created.
// An email already linked to a different identity is a conflict.
func (r *UserRepository) UpsertFromIdentity(ctx context.Context, externalID, email, name string) (*user.User, error) {
	u, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET external_id    = EXCLUDED.external_id,
		    name           = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		    is_placeholder = FALSE,
		    updated_at     = EXCLUDED.updated_at
		WHERE users.external_id IS NULL
		RETURNING ` + userColumns

	u, err = scanUser(r.db.QueryRowContext(ctx, query,
		shared.NewID().String(), externalID, user.NormalizeEmail(email), strings.TrimSpace(name), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, user.ErrIdentityTaken
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*user.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func scanUser(row scanner) (*user.User, error) {
	var (
		id, email, name      string
		externalID           sql.NullString
		isPlaceholder        bool
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &externalID, &email, &name, &isPlaceholder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	parsedID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	return user.Reconstitute(parsedID, nullStringValue(externalID), email, name, isPlaceholder, createdAt, updatedAt), nil
}
