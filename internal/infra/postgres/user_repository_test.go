package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
)

var userRowColumns = []string{"id", "external_id", "email", "name", "is_placeholder", "created_at", "updated_at"}

func TestUserRepository_UpsertFromIdentity(t *testing.T) {
	now := time.Now().UTC()

	t.Run("known identity", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)
		id := shared.NewID()

		mock.ExpectQuery("WHERE external_id = \\$1").WithArgs("sub-1").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(id.String(), "sub-1", "a@b.io", "A", false, now, now))

		u, err := repo.UpsertFromIdentity(context.Background(), "sub-1", "a@b.io", "A")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID())
	})

	t.Run("claims placeholder by email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)
		placeholderID := shared.NewID()

		mock.ExpectQuery("WHERE external_id = \\$1").WillReturnRows(sqlmock.NewRows(userRowColumns))
		mock.ExpectQuery("ON CONFLICT \\(email\\) DO UPDATE").
			WithArgs(sqlmock.AnyArg(), "sub-2", "guest@example.com", "Guest", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(placeholderID.String(), "sub-2", "guest@example.com", "Guest", false, now, now))

		u, err := repo.UpsertFromIdentity(context.Background(), "sub-2", " Guest@Example.com ", "Guest")
		require.NoError(t, err)
		assert.Equal(t, placeholderID, u.ID())
		assert.False(t, u.IsPlaceholder())
		require.NotNil(t, u.ExternalID())
		assert.Equal(t, "sub-2", *u.ExternalID())
	})

	t.Run("email linked to another identity", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery("WHERE external_id = \\$1").WillReturnRows(sqlmock.NewRows(userRowColumns))
		mock.ExpectQuery("ON CONFLICT \\(email\\)").WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.UpsertFromIdentity(context.Background(), "sub-3", "taken@example.com", "")
		assert.ErrorIs(t, err, user.ErrIdentityTaken)
		assert.True(t, shared.IsConflict(err))
	})
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	u, err := user.NewPlaceholder("dup@example.com", "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO users").WillReturnError(pqErr(pgUniqueViolation))

	assert.ErrorIs(t, repo.Create(context.Background(), u), user.ErrEmailTaken)
}

func TestUserRepository_GetByIDsEmpty(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewUserRepository(db)

	users, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
