package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

func TestAuthorization_SystemRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.systemPermission(t, permission.EventView)
	h.systemPermission(t, permission.EventManage)
	support := h.systemRole(t, "support", view)
	alice := h.newUser(t, "alice@example.com")

	assert.False(t, h.allowedSystem(t, alice, permission.EventView))

	_, err := h.grants.AssignSystemRole(ctx, AssignSystemRoleInput{
		UserID: alice.ID().String(),
		RoleID: support.ID().String(),
	}, shared.ID{})
	require.NoError(t, err)

	assert.True(t, h.allowedSystem(t, alice, permission.EventView))
	assert.False(t, h.allowedSystem(t, alice, permission.EventManage))

	d, err := h.authz.Check(ctx, alice.ID(), accesscontrol.System(permission.EventView))
	require.NoError(t, err)
	assert.Equal(t, accesscontrol.SourceSystemRole, d.Source)

	require.NoError(t, h.grants.RevokeSystemRole(ctx, alice.ID().String(), support.ID().String(), shared.ID{}))
	assert.False(t, h.allowedSystem(t, alice, permission.EventView))
}

func TestAuthorization_DirectSystemGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	manage := h.systemPermission(t, permission.EventManage)
	bob := h.newUser(t, "bob@example.com")

	_, err := h.grants.GrantPermission(ctx, GrantPermissionInput{
		UserID:       bob.ID().String(),
		PermissionID: manage.ID().String(),
	}, shared.ID{})
	require.NoError(t, err)

	d, err := h.authz.Check(ctx, bob.ID(), accesscontrol.System(permission.EventManage))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, accesscontrol.SourceDirect, d.Source)

	require.NoError(t, h.grants.RevokePermission(ctx, bob.ID().String(), manage.ID().String(), nil, shared.ID{}))
	assert.False(t, h.allowedSystem(t, bob, permission.EventManage))
}

func TestAuthorization_ExpiredGrantsCarryNoAuthority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.systemPermission(t, permission.EventView)
	manage := h.systemPermission(t, permission.EventManage)
	support := h.systemRole(t, "support", view)
	carol := h.newUser(t, "carol@example.com")

	expires := h.now.Add(time.Hour)
	_, err := h.grants.AssignSystemRole(ctx, AssignSystemRoleInput{
		UserID:    carol.ID().String(),
		RoleID:    support.ID().String(),
		ExpiresAt: &expires,
	}, shared.ID{})
	require.NoError(t, err)
	_, err = h.grants.GrantPermission(ctx, GrantPermissionInput{
		UserID:       carol.ID().String(),
		PermissionID: manage.ID().String(),
		ExpiresAt:    &expires,
	}, shared.ID{})
	require.NoError(t, err)

	assert.True(t, h.allowedSystem(t, carol, permission.EventView))
	assert.True(t, h.allowedSystem(t, carol, permission.EventManage))

	h.advance(2 * time.Hour)

	assert.False(t, h.allowedSystem(t, carol, permission.EventView))
	assert.False(t, h.allowedSystem(t, carol, permission.EventManage))
}

func TestAuthorization_InactiveRowsCarryNoAuthority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.systemPermission(t, permission.EventView)
	support := h.systemRole(t, "support", view)
	dave := h.newUser(t, "dave@example.com")
	_, err := h.grants.AssignSystemRole(ctx, AssignSystemRoleInput{
		UserID: dave.ID().String(),
		RoleID: support.ID().String(),
	}, shared.ID{})
	require.NoError(t, err)
	require.True(t, h.allowedSystem(t, dave, permission.EventView))

	t.Run("inactive role", func(t *testing.T) {
		_, err := h.roles.UpdateRole(ctx, nil, support.ID().String(), UpdateRoleInput{IsActive: ptr(false)}, shared.ID{})
		require.NoError(t, err)
		assert.False(t, h.allowedSystem(t, dave, permission.EventView))

		_, err = h.roles.UpdateRole(ctx, nil, support.ID().String(), UpdateRoleInput{IsActive: ptr(true)}, shared.ID{})
		require.NoError(t, err)
		assert.True(t, h.allowedSystem(t, dave, permission.EventView))
	})

	t.Run("inactive permission", func(t *testing.T) {
		_, err := h.perms.UpdatePermission(ctx, nil, view.ID().String(), UpdatePermissionInput{IsActive: ptr(false)}, shared.ID{})
		require.NoError(t, err)
		assert.False(t, h.allowedSystem(t, dave, permission.EventView))
	})
}

func TestAuthorization_OwnerBypass(t *testing.T) {
	h := newHarness(t)
	owner := h.newUser(t, "owner@example.com")
	stranger := h.newUser(t, "stranger@example.com")
	org := h.organization(t, owner, "Acme Events")

	// The owner holds every type, including ones never defined.
	assert.True(t, h.allowedIn(t, owner, org.ID(), permission.CollaboratorManage))
	assert.True(t, h.allowedIn(t, owner, org.ID(), permission.CRM))
	assert.True(t, h.allowedIn(t, owner, org.ID(), "anything_at_all"))

	assert.False(t, h.allowedIn(t, stranger, org.ID(), permission.OrganizationView))

	// Ownership is per organization.
	other := h.organization(t, stranger, "Other Org")
	assert.False(t, h.allowedIn(t, owner, other.ID(), permission.OrganizationView))
}

func TestAuthorization_OwnershipTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	heir := h.newUser(t, "heir@example.com")
	org := h.organization(t, owner, "Acme Events")

	_, err := h.orgs.TransferOwnership(ctx, org.ID().String(), TransferOwnershipInput{NewOwnerID: heir.ID().String()}, heir.ID())
	require.ErrorIs(t, err, organization.ErrNotOwner)

	_, err = h.orgs.TransferOwnership(ctx, org.ID().String(), TransferOwnershipInput{NewOwnerID: heir.ID().String()}, owner.ID())
	require.NoError(t, err)

	assert.True(t, h.allowedIn(t, heir, org.ID(), permission.CRM))
	assert.False(t, h.allowedIn(t, owner, org.ID(), permission.CRM))
}

func TestAuthorization_UnknownOrganizationDenies(t *testing.T) {
	h := newHarness(t)
	u := h.newUser(t, "u@example.com")
	assert.False(t, h.allowedIn(t, u, shared.NewID(), permission.OrganizationView))
}

func TestAuthorization_DirectOrganizationGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	erin := h.newUser(t, "erin@example.com")
	org := h.organization(t, owner, "Acme Events")
	other := h.organization(t, owner, "Other Org")
	h.organizationPermission(t, org.ID(), permission.CRM)

	orgID := org.ID().String()
	_, err := h.grants.GrantPermission(ctx, GrantPermissionInput{
		UserID:         erin.ID().String(),
		PermissionID:   crm.ID().String(),
		OrganizationID: &orgID,
	}, shared.ID{})
	require.NoError(t, err)

	d, err := h.authz.Check(ctx, erin.ID(), accesscontrol.Organization(org.ID(), permission.CRM))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, accesscontrol.SourceDirect, d.Source)

	// Bound to the organization it was granted in.
	assert.False(t, h.allowedIn(t, erin, other.ID(), permission.CRM))
	// Organization grants never satisfy system checks.
	assert.False(t, h.allowedSystem(t, erin, permission.CRM))
}

func TestAuthorization_AnyOf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	org := h.organization(t, owner, "Acme Events")
	h.systemPermission(t, permission.EventManage)

	req := accesscontrol.AnyOf(
		accesscontrol.System(permission.EventManage),
		accesscontrol.Organization(org.ID(), permission.Backoffice),
	)
	d, err := h.authz.Check(ctx, owner.ID(), req)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, accesscontrol.SourceOwner, d.Source)

	stranger := h.newUser(t, "stranger@example.com")
	err = h.authz.Require(ctx, stranger.ID(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAuthorization_InvalidRequirement(t *testing.T) {
	h := newHarness(t)
	u := h.newUser(t, "u@example.com")

	_, err := h.authz.Check(context.Background(), u.ID(), accesscontrol.Organization(shared.ID{}, permission.CRM))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.authz.Check(context.Background(), u.ID(), accesscontrol.AnyOf())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAuthorization_CheckKnown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.newUser(t, "owner@example.com")
	u := h.newUser(t, "u@example.com")
	org := h.organization(t, owner, "Acme Events")

	view := h.systemPermission(t, permission.EventView)
	h.organizationPermission(t, org.ID(), permission.CRM)

	t.Run("catalogued types resolve as usual", func(t *testing.T) {
		d, err := h.authz.CheckKnown(ctx, owner.ID(), accesscontrol.Organization(org.ID(), permission.CRM))
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		d, err = h.authz.CheckKnown(ctx, u.ID(), accesscontrol.System(permission.EventView))
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})

	t.Run("unknown system type", func(t *testing.T) {
		_, err := h.authz.CheckKnown(ctx, u.ID(), accesscontrol.System("evnt_view"))
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.ErrorContains(t, err, "evnt_view")
	})

	t.Run("owner gets no bypass for an unknown type", func(t *testing.T) {
		_, err := h.authz.CheckKnown(ctx, owner.ID(), accesscontrol.Organization(org.ID(), "anything_at_all"))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("types are looked up in their own scope", func(t *testing.T) {
		_, err := h.authz.CheckKnown(ctx, u.ID(), accesscontrol.System(permission.CRM))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("any unknown alternative fails the whole check", func(t *testing.T) {
		_, err := h.authz.CheckKnown(ctx, owner.ID(), accesscontrol.AnyOf(
			accesscontrol.Organization(org.ID(), permission.CRM),
			accesscontrol.System("evnt_view"),
		))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("inactive types deny", func(t *testing.T) {
		_, err := h.perms.UpdatePermission(ctx, nil, view.ID().String(), UpdatePermissionInput{IsActive: ptr(false)}, shared.ID{})
		require.NoError(t, err)

		d, err := h.authz.CheckKnown(ctx, u.ID(), accesscontrol.System(permission.EventView))
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})
}

func TestAuthorization_RequireReturnsForbiddenError(t *testing.T) {
	h := newHarness(t)
	u := h.newUser(t, "u@example.com")
	h.systemPermission(t, permission.GrantManage)

	err := h.authz.RequireSystemPermission(context.Background(), u.ID(), permission.GrantManage)
	require.Error(t, err)

	var fe *shared.ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, permission.GrantManage.String(), fe.Permission)
}

func TestAuthorization_EffectivePermissions(t *testing.T) {
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

	eff, err := h.authz.EffectivePermissions(ctx, u.ID(), nil)
	require.NoError(t, err)
	assert.Equal(t, []permission.Type{permission.EventManage, permission.EventView}, eff.Types)
	assert.Equal(t, accesscontrol.SourceSystemRole, eff.Sources[permission.EventView][0].Source)
	assert.Equal(t, accesscontrol.SourceDirect, eff.Sources[permission.EventManage][0].Source)

	t.Run("owner lists every active organization type", func(t *testing.T) {
		org := h.organization(t, u, "Acme Events")
		eff, err := h.authz.EffectivePermissions(ctx, u.ID(), ptr(org.ID()))
		require.NoError(t, err)
		for _, pt := range permission.OrganizationDefaults() {
			assert.True(t, eff.Has(pt), pt)
		}
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, err := h.authz.EffectivePermissions(ctx, u.ID(), ptr(shared.NewID()))
		assert.ErrorIs(t, err, organization.ErrOrganizationNotFound)
	})
}
