package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/pagination"
)

var collaborationRowColumns = []string{
	"id", "collaborator_id", "organization_id", "email", "name", "status",
	"invited_by", "invited_at", "accepted_at", "expires_at", "is_active", "updated_at",
}

func newTestCollaboration(t *testing.T) *collaboration.Collaboration {
	t.Helper()
	c, err := collaboration.New(shared.NewID(), shared.NewID(), "Guest@Example.com", shared.NewID(), nil, time.Now().UTC())
	require.NoError(t, err)
	return c
}

func TestCollaborationRepository_CreateWithBundle(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	c := newTestCollaboration(t)
	actor := c.InvitedBy()

	perm, err := permission.NewForOrganization(c.OrganizationID(), permission.Spec{Name: "View events", Type: "event_view"})
	require.NoError(t, err)
	orgID := c.OrganizationID()
	g, err := grant.NewDirectGrant(c.CollaboratorID(), perm, &orgID, &actor, nil, c.InvitedAt())
	require.NoError(t, err)

	changes := collaboration.GrantChanges{
		ReplaceRole:         true,
		Role:                grant.NewRoleAttachment(c.ID(), shared.NewID(), &actor, c.InvitedAt()),
		ReplaceDirectGrants: true,
		DirectGrants:        []*grant.DirectGrant{g},
		Actor:               &actor,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collaborations").
		WithArgs(c.ID().String(), c.CollaboratorID().String(), c.OrganizationID().String(), "guest@example.com", "pending",
			actor.String(), c.InvitedAt(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, c.UpdatedAt()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_organization_roles SET is_active = FALSE").
		WithArgs(c.ID().String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO user_organization_roles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_permissions").
		WithArgs(c.CollaboratorID().String(), c.OrganizationID().String(), sqlmock.AnyArg(), c.UpdatedAt()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO user_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(g.ID().String()))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), c, changes))
}

func TestCollaborationRepository_CreateAddsGrantsWithoutRevoking(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	c := newTestCollaboration(t)
	actor := c.InvitedBy()

	perm, err := permission.NewForOrganization(c.OrganizationID(), permission.Spec{Name: "CRM", Type: "crm"})
	require.NoError(t, err)
	orgID := c.OrganizationID()
	g, err := grant.NewDirectGrant(c.CollaboratorID(), perm, &orgID, &actor, nil, c.InvitedAt())
	require.NoError(t, err)

	changes := collaboration.GrantChanges{
		ReplaceRole:  true,
		DirectGrants: []*grant.DirectGrant{g},
		Actor:        &actor,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collaborations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_organization_roles SET is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))
	// The collaborator already holds the grant: the guarded upsert returns
	// no row and the existing grant is kept.
	mock.ExpectQuery("(?s)INSERT INTO user_permissions.*DO UPDATE.*WHERE \\(NOT user_permissions.is_active").
		WithArgs(g.ID().String(), c.CollaboratorID().String(), sqlmock.AnyArg(), perm.ID().String(), orgID.String(),
			actor.String(), c.InvitedAt(), sqlmock.AnyArg(), c.ID().String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), c, changes))
}

func TestCollaborationRepository_RevokeIssuedGrants(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	c := newTestCollaboration(t)
	actor := c.CollaboratorID()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE collaborations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("(?s)UPDATE user_permissions.*WHERE collaboration_id = \\$1 AND is_active = TRUE").
		WithArgs(c.ID().String(), actor.String(), c.UpdatedAt()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), c, collaboration.GrantChanges{RevokeIssuedGrants: true, Actor: &actor}))
}

func TestCollaborationRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collaborations").WillReturnError(pqErr(pgUniqueViolation))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), newTestCollaboration(t), collaboration.GrantChanges{})
	assert.ErrorIs(t, err, collaboration.ErrCollaborationExists)
}

func TestCollaborationRepository_ReviveRaceWithLiveRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("WHERE id = \\$1 AND is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Revive(context.Background(), newTestCollaboration(t), collaboration.GrantChanges{ReplaceRole: true})
	assert.ErrorIs(t, err, collaboration.ErrCollaborationExists)
}

func TestCollaborationRepository_UpdateWithoutChanges(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	c := newTestCollaboration(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE collaborations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), c, collaboration.GrantChanges{}))
}

func TestCollaborationRepository_GetByPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	id, userID, orgID, inviter := shared.NewID(), shared.NewID(), shared.NewID(), shared.NewID()
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE c.collaborator_id = \\$1 AND c.organization_id = \\$2").
		WithArgs(userID.String(), orgID.String()).
		WillReturnRows(sqlmock.NewRows(collaborationRowColumns).
			AddRow(id.String(), userID.String(), orgID.String(), "a@b.io", "Alice", "accepted",
				inviter.String(), now, now, now.Add(time.Hour), true, now))

	c, err := repo.GetByPair(context.Background(), userID, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.CollaboratorName())
	assert.True(t, c.GrantsAuthority())

	mock.ExpectQuery("FROM collaborations c").WillReturnRows(sqlmock.NewRows(collaborationRowColumns))
	_, err = repo.GetByPair(context.Background(), userID, orgID)
	assert.ErrorIs(t, err, collaboration.ErrCollaborationNotFound)
}

func TestCollaborationRepository_ListFiltersAndSort(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCollaborationRepository(db)
	orgID, roleID := shared.NewID(), shared.NewID()
	status := collaboration.StatusAccepted

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM collaborations c").
		WithArgs(orgID.String(), "accepted", "%ali%", roleID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("ORDER BY c.email ASC, c.invited_at DESC LIMIT \\$5 OFFSET \\$6").
		WithArgs(orgID.String(), "accepted", "%ali%", roleID.String(), 10, 10).
		WillReturnRows(sqlmock.NewRows(collaborationRowColumns))

	result, err := repo.List(context.Background(), orgID, collaboration.Filter{
		Status: &status,
		Search: "ali",
		RoleID: &roleID,
		Sort:   "email,-invited_at,bogus",
	}, pagination.New(2, 10))
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Equal(t, 2, result.Page)
}
