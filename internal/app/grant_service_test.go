package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
)

func TestGrantService_AssignSystemRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.systemPermission(t, permission.EventView)
	support := h.systemRole(t, "support", view)
	alice := h.newUser(t, "alice@example.com")
	input := AssignSystemRoleInput{UserID: alice.ID().String(), RoleID: support.ID().String()}

	a, err := h.grants.AssignSystemRole(ctx, input, shared.ID{})
	require.NoError(t, err)
	assert.True(t, a.IsActive())

	t.Run("duplicate is a conflict", func(t *testing.T) {
		_, err := h.grants.AssignSystemRole(ctx, input, shared.ID{})
		assert.ErrorIs(t, err, grant.ErrAssignmentExists)
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("revoked pair is revived in place", func(t *testing.T) {
		require.NoError(t, h.grants.RevokeSystemRole(ctx, alice.ID().String(), support.ID().String(), shared.ID{}))

		again, err := h.grants.AssignSystemRole(ctx, input, shared.ID{})
		require.NoError(t, err)
		assert.Equal(t, a.ID(), again.ID())
		assert.True(t, h.allowedSystem(t, alice, permission.EventView))
	})

	t.Run("revoking twice is not found", func(t *testing.T) {
		require.NoError(t, h.grants.RevokeSystemRole(ctx, alice.ID().String(), support.ID().String(), shared.ID{}))
		err := h.grants.RevokeSystemRole(ctx, alice.ID().String(), support.ID().String(), shared.ID{})
		assert.ErrorIs(t, err, grant.ErrAssignmentNotFound)
	})

	t.Run("notifies the user", func(t *testing.T) {
		sent := h.notifier.Sent()
		require.NotEmpty(t, sent)
		assert.Equal(t, NotificationAccessChanged, sent[0].Type)
		assert.Equal(t, "alice@example.com", sent[0].UserEmail)
	})
}

func TestGrantService_AssignRejectsOrganizationRole(t *testing.T) {
	h := newHarness(t)
	owner := h.newUser(t, "owner@example.com")
	org := h.organization(t, owner, "Acme Events")
	orgRole := h.organizationRole(t, org.ID(), "editor")
	u := h.newUser(t, "u@example.com")

	_, err := h.grants.AssignSystemRole(context.Background(), AssignSystemRoleInput{
		UserID: u.ID().String(),
		RoleID: orgRole.ID().String(),
	}, shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestGrantService_AssignUnknownUser(t *testing.T) {
	h := newHarness(t)
	support := h.systemRole(t, "support")

	_, err := h.grants.AssignSystemRole(context.Background(), AssignSystemRoleInput{
		UserID: shared.NewID().String(),
		RoleID: support.ID().String(),
	}, shared.ID{})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestGrantService_AssignPastExpiry(t *testing.T) {
	h := newHarness(t)
	support := h.systemRole(t, "support")
	u := h.newUser(t, "u@example.com")

	past := h.now.Add(-time.Minute)
	_, err := h.grants.AssignSystemRole(context.Background(), AssignSystemRoleInput{
		UserID:    u.ID().String(),
		RoleID:    support.ID().String(),
		ExpiresAt: &past,
	}, shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestGrantService_GrantPermissionScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	org := h.organization(t, owner, "Acme Events")
	other := h.organization(t, owner, "Other Org")
	crm := h.organizationPermission(t, org.ID(), permission.CRM)
	view := h.systemPermission(t, permission.EventView)
	u := h.newUser(t, "u@example.com")

	t.Run("organization permission needs its organization", func(t *testing.T) {
		_, err := h.grants.GrantPermission(ctx, GrantPermissionInput{
			UserID:       u.ID().String(),
			PermissionID: crm.ID().String(),
		}, shared.ID{})
		assert.ErrorIs(t, err, permission.ErrScopeMismatch)

		otherID := other.ID().String()
		_, err = h.grants.GrantPermission(ctx, GrantPermissionInput{
			UserID:         u.ID().String(),
			PermissionID:   crm.ID().String(),
			OrganizationID: &otherID,
		}, shared.ID{})
		assert.ErrorIs(t, err, permission.ErrScopeMismatch)
	})

	t.Run("system permission cannot be bound", func(t *testing.T) {
		orgID := org.ID().String()
		_, err := h.grants.GrantPermission(ctx, GrantPermissionInput{
			UserID:         u.ID().String(),
			PermissionID:   view.ID().String(),
			OrganizationID: &orgID,
		}, shared.ID{})
		assert.ErrorIs(t, err, permission.ErrScopeMismatch)
	})

	t.Run("revoke checks the organization", func(t *testing.T) {
		orgID := org.ID().String()
		_, err := h.grants.GrantPermission(ctx, GrantPermissionInput{
			UserID:         u.ID().String(),
			PermissionID:   crm.ID().String(),
			OrganizationID: &orgID,
		}, shared.ID{})
		require.NoError(t, err)

		otherID := other.ID().String()
		err = h.grants.RevokePermission(ctx, u.ID().String(), crm.ID().String(), &otherID, shared.ID{})
		assert.Error(t, err)
		assert.True(t, h.allowedIn(t, u, org.ID(), permission.CRM))

		require.NoError(t, h.grants.RevokePermission(ctx, u.ID().String(), crm.ID().String(), &orgID, shared.ID{}))
		assert.False(t, h.allowedIn(t, u, org.ID(), permission.CRM))
	})
}

func TestGrantService_ListUserGrants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	view := h.systemPermission(t, permission.EventView)
	manage := h.systemPermission(t, permission.EventManage)
	support := h.systemRole(t, "support", view)
	u := h.newUser(t, "u@example.com")

	_, err := h.grants.AssignSystemRole(ctx, AssignSystemRoleInput{UserID: u.ID().String(), RoleID: support.ID().String()}, shared.ID{})
	require.NoError(t, err)
	_, err = h.grants.GrantPermission(ctx, GrantPermissionInput{UserID: u.ID().String(), PermissionID: manage.ID().String()}, shared.ID{})
	require.NoError(t, err)

	got, err := h.grants.ListUserGrants(ctx, u.ID().String())
	require.NoError(t, err)
	assert.Len(t, got.SystemRoles, 1)
	assert.Len(t, got.DirectGrants, 1)
}

func TestGrantService_BulkAssignRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	view := h.systemPermission(t, permission.EventView)
	support := h.systemRole(t, "support", view)

	users := []string{
		h.newUser(t, "a@example.com").ID().String(),
		h.newUser(t, "b@example.com").ID().String(),
		h.newUser(t, "c@example.com").ID().String(),
	}

	result, err := h.grants.BulkAssignRoles(ctx, BulkAssignRolesInput{
		UserIDs: users,
		RoleIDs: []string{support.ID().String()},
	}, shared.ID{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failures)

	t.Run("failed pairs are reported and skipped", func(t *testing.T) {
		newcomer := h.newUser(t, "d@example.com").ID().String()
		missingRole := shared.NewID().String()

		result, err := h.grants.BulkAssignRoles(ctx, BulkAssignRolesInput{
			UserIDs: append([]string{newcomer}, users[0]),
			RoleIDs: []string{support.ID().String(), missingRole},
		}, shared.ID{})
		require.NoError(t, err)

		// newcomer/support succeeds; users[0]/support already exists;
		// both pairs of the unknown role fail.
		assert.Equal(t, 1, result.SuccessCount)
		assert.Len(t, result.Failures, 3)
		for _, f := range result.Failures {
			assert.NotEmpty(t, f.Reason)
		}
	})

	t.Run("unknown user fails only its pairs", func(t *testing.T) {
		manage := h.systemPermission(t, permission.EventManage)
		admin := h.systemRole(t, "admin", manage)

		result, err := h.grants.BulkAssignRoles(ctx, BulkAssignRolesInput{
			UserIDs: []string{users[0], shared.NewID().String()},
			RoleIDs: []string{admin.ID().String()},
		}, shared.ID{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.SuccessCount)
		require.Len(t, result.Failures, 1)
	})
}

func TestGrantService_BulkAssignPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	org := h.organization(t, owner, "Acme Events")
	crm := h.organizationPermission(t, org.ID(), permission.CRM)
	backoffice := h.organizationPermission(t, org.ID(), permission.Backoffice)
	system := h.systemPermission(t, permission.EventView)

	a := h.newUser(t, "a@example.com")
	b := h.newUser(t, "b@example.com")

	result, err := h.grants.BulkAssignPermissions(ctx, BulkAssignPermissionsInput{
		OrganizationID: org.ID().String(),
		UserIDs:        []string{a.ID().String(), b.ID().String()},
		PermissionIDs:  []string{crm.ID().String(), backoffice.ID().String(), system.ID().String(), shared.NewID().String()},
	}, shared.ID{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.SuccessCount)
	// The system permission and the unknown one fail for both users.
	assert.Len(t, result.Failures, 4)

	assert.True(t, h.allowedIn(t, a, org.ID(), permission.CRM))
	assert.True(t, h.allowedIn(t, b, org.ID(), permission.Backoffice))
	assert.False(t, h.allowedSystem(t, a, permission.EventView))
}

func TestGrantService_NotificationFailureDoesNotFailMutation(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	view := h.systemPermission(t, permission.EventView)
	u := h.newUser(t, "u@example.com")

	_, err := h.grants.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:       u.ID().String(),
		PermissionID: view.ID().String(),
	}, shared.ID{})
	require.NoError(t, err)
	assert.True(t, h.allowedSystem(t, u, permission.EventView))
	assert.Len(t, h.notifier.Sent(), 1)
}
