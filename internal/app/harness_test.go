package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/logger"
)

// harness wires every service over one memStore with a pinned clock.
type harness struct {
	store    *memStore
	now      time.Time
	notifier *recordingNotifier
	cache    *DecisionCache

	authz   *AuthorizationService
	perms   *PermissionService
	roles   *RoleService
	grants  *GrantService
	orgs    *OrganizationService
	collabs *CollaborationService
	users   *UserService
	catalog *CatalogService
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()

	h := &harness{
		store:    newMemStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
	}
	for _, opt := range opts {
		opt(h)
	}
	clock := func() time.Time { return h.now }
	log := logger.NewNop()
	s := h.store

	h.authz = NewAuthorizationService(s.Authority(), s.Orgs(), s.Perms(), log,
		WithAuthorizationClock(clock),
		WithAuthorizationCache(h.cache),
	)
	h.perms = NewPermissionService(s.Perms(), log, WithPermissionDecisionCache(h.cache))
	h.roles = NewRoleService(s.Roles(), s.Perms(), log, WithRoleDecisionCache(h.cache))
	h.grants = NewGrantService(s.Grants(), s.Roles(), s.Perms(), s.Users(), log,
		WithGrantClock(clock),
		WithGrantNotifier(h.notifier),
		WithGrantDecisionCache(h.cache),
	)
	h.orgs = NewOrganizationService(s.Orgs(), s.Users(), log, WithOrganizationDecisionCache(h.cache))
	h.collabs = NewCollaborationService(s.Collabs(), s.Users(), s.Orgs(), s.Roles(), s.Perms(), h.authz, log,
		WithCollaborationClock(clock),
		WithCollaborationDecisionCache(h.cache),
		WithCollaborationNotifier(h.notifier),
		WithCollaborationBaseURL("https://app.example.com/"),
	)
	h.users = NewUserService(s.Users(), log)
	h.catalog = NewCatalogService(s.Perms(), s.Roles(), h.cache, log)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) newUser(t *testing.T, email string) *user.User {
	t.Helper()
	u, err := user.NewPlaceholder(email, "")
	require.NoError(t, err)
	require.NoError(t, h.store.Users().Create(context.Background(), u))
	return u
}

func (h *harness) systemPermission(t *testing.T, pt permission.Type) *permission.Permission {
	t.Helper()
	p, err := h.perms.CreateSystemPermission(context.Background(), CreatePermissionInput{
		Type: pt.String(),
		Name: "Permission " + pt.String(),
	}, shared.ID{})
	require.NoError(t, err)
	return p
}

func (h *harness) organizationPermission(t *testing.T, orgID shared.ID, pt permission.Type) *permission.Permission {
	t.Helper()
	ctx := context.Background()
	if p, err := h.store.Perms().GetByType(ctx, &orgID, pt); err == nil {
		return p
	}
	p, err := h.perms.CreateOrganizationPermission(ctx, orgID.String(), CreatePermissionInput{
		Type: pt.String(),
		Name: "Permission " + pt.String(),
	}, shared.ID{})
	require.NoError(t, err)
	return p
}

func (h *harness) systemRole(t *testing.T, rt string, perms ...*permission.Permission) *role.Role {
	t.Helper()
	r, err := h.roles.CreateSystemRole(context.Background(), CreateRoleInput{
		Type:          rt,
		Name:          "Role " + rt,
		PermissionIDs: permissionIDs(perms),
	}, shared.ID{})
	require.NoError(t, err)
	return r
}

func (h *harness) organizationRole(t *testing.T, orgID shared.ID, rt string, perms ...*permission.Permission) *role.Role {
	t.Helper()
	r, err := h.roles.CreateOrganizationRole(context.Background(), orgID.String(), CreateRoleInput{
		Type:          rt,
		Name:          "Role " + rt,
		PermissionIDs: permissionIDs(perms),
	}, shared.ID{})
	require.NoError(t, err)
	return r
}

func (h *harness) organization(t *testing.T, owner *user.User, name string) *organization.Organization {
	t.Helper()
	o, err := h.orgs.CreateOrganization(context.Background(), CreateOrganizationInput{Name: name}, owner.ID())
	require.NoError(t, err)
	return o
}

func (h *harness) allowedSystem(t *testing.T, u *user.User, pt permission.Type) bool {
	t.Helper()
	ok, err := h.authz.HasSystemPermission(context.Background(), u.ID(), pt)
	require.NoError(t, err)
	return ok
}

func (h *harness) allowedIn(t *testing.T, u *user.User, orgID shared.ID, pt permission.Type) bool {
	t.Helper()
	ok, err := h.authz.HasOrganizationPermission(context.Background(), u.ID(), orgID, pt)
	require.NoError(t, err)
	return ok
}

func permissionIDs(perms []*permission.Permission) []string {
	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID().String()
	}
	return ids
}

func ptr[T any](v T) *T { return &v }
