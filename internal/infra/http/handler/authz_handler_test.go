package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/internal/infra/http/middleware"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

// fakeAuthority answers from in-memory grant sets keyed by user, org and type.
type fakeAuthority struct {
	systemRole map[string]bool
	orgRole    map[string]bool
}

func key(userID shared.ID, org *shared.ID, t permission.Type) string {
	k := userID.String() + "|" + t.String()
	if org != nil {
		k += "|" + org.String()
	}
	return k
}

func (f *fakeAuthority) HasSystemRolePermission(_ context.Context, userID shared.ID, t permission.Type, _ time.Time) (bool, error) {
	return f.systemRole[key(userID, nil, t)], nil
}

func (f *fakeAuthority) HasDirectSystemPermission(context.Context, shared.ID, permission.Type, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeAuthority) HasOrganizationRolePermission(_ context.Context, userID, orgID shared.ID, t permission.Type) (bool, error) {
	return f.orgRole[key(userID, &orgID, t)], nil
}

func (f *fakeAuthority) HasDirectOrganizationPermission(context.Context, shared.ID, shared.ID, permission.Type, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeAuthority) SystemPermissionSources(_ context.Context, userID shared.ID, _ time.Time) ([]accesscontrol.PermissionSource, error) {
	var out []accesscontrol.PermissionSource
	for k := range f.systemRole {
		parts := strings.Split(k, "|")
		if parts[0] == userID.String() {
			out = append(out, accesscontrol.PermissionSource{
				Type:       permission.Type(parts[1]),
				Source:     accesscontrol.SourceSystemRole,
				SourceName: "platform_admin",
			})
		}
	}
	return out, nil
}

func (f *fakeAuthority) OrganizationPermissionSources(context.Context, shared.ID, shared.ID, time.Time) ([]accesscontrol.PermissionSource, error) {
	return nil, nil
}

type fakeOwners map[shared.ID]shared.ID

func (f fakeOwners) OwnerOf(_ context.Context, id shared.ID) (shared.ID, error) {
	owner, ok := f[id]
	if !ok {
		return shared.ID{}, shared.ErrNotFound
	}
	return owner, nil
}

// fakeCatalog holds the system types and the types of every organization.
type fakeCatalog struct {
	system       []permission.Type
	organization []permission.Type
}

func (f fakeCatalog) GetByType(_ context.Context, orgID *shared.ID, t permission.Type) (*permission.Permission, error) {
	types := f.system
	if orgID != nil {
		types = f.organization
	}
	if !slices.Contains(types, t) {
		return nil, permission.ErrPermissionNotFound
	}
	if orgID != nil {
		return permission.NewForOrganization(*orgID, permission.Spec{Name: t.String(), Type: t})
	}
	return permission.NewSystem(permission.Spec{Name: t.String(), Type: t})
}

func (f fakeCatalog) ListActiveTypes(context.Context, shared.ID) ([]permission.Type, error) {
	return f.organization, nil
}

type authzFixture struct {
	handler *AuthzHandler
	admin   shared.ID
	member  shared.ID
	owner   shared.ID
	org     shared.ID
}

func newAuthzFixture() authzFixture {
	f := authzFixture{
		admin:  shared.NewID(),
		member: shared.NewID(),
		owner:  shared.NewID(),
		org:    shared.NewID(),
	}
	reader := &fakeAuthority{
		systemRole: map[string]bool{
			key(f.admin, nil, permission.GrantManage): true,
			key(f.admin, nil, permission.RoleManage):  true,
		},
		orgRole: map[string]bool{
			key(f.member, &f.org, permission.OrganizationView): true,
		},
	}
	svc := app.NewAuthorizationService(reader, fakeOwners{f.org: f.owner},
		fakeCatalog{
			system:       []permission.Type{permission.GrantManage, permission.RoleManage},
			organization: []permission.Type{permission.CollaboratorManage, permission.OrganizationView},
		}, logger.NewNop())
	f.handler = NewAuthzHandler(svc, validator.New(), logger.NewNop())
	return f
}

func (f authzFixture) post(t *testing.T, caller shared.ID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/authz/check", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), caller))
	rec := httptest.NewRecorder()
	f.handler.Check(rec, req)
	return rec
}

func decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) DecisionResponse {
	t.Helper()
	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthzHandler_Check(t *testing.T) {
	f := newAuthzFixture()

	t.Run("own system permission", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"permission":"role_manage"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeDecision(t, rec)
		assert.True(t, resp.Allowed)
		assert.Equal(t, "role_manage", resp.Permission)
		assert.Equal(t, "system_role", resp.Source)
	})

	t.Run("denial is a 200 with allowed false", func(t *testing.T) {
		rec := f.post(t, f.member, `{"permission":"role_manage"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decodeDecision(t, rec).Allowed)
	})

	t.Run("owner bypass in organization", func(t *testing.T) {
		rec := f.post(t, f.owner, `{"permission":"collaborator_manage","organization_id":"`+f.org.String()+`"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeDecision(t, rec)
		assert.True(t, resp.Allowed)
		assert.Equal(t, "owner", resp.Source)
		require.NotNil(t, resp.OrganizationID)
		assert.Equal(t, f.org.String(), *resp.OrganizationID)
	})

	t.Run("any_of reports the satisfied alternative", func(t *testing.T) {
		body := `{"any_of":[{"permission":"role_manage"},{"permission":"organization_view","organization_id":"` + f.org.String() + `"}]}`
		rec := f.post(t, f.member, body)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeDecision(t, rec)
		assert.True(t, resp.Allowed)
		assert.Equal(t, "organization_view", resp.Permission)
		assert.Equal(t, "organization_role", resp.Source)
	})

	t.Run("another user needs grant_manage", func(t *testing.T) {
		rec := f.post(t, f.member, `{"user_id":"`+f.admin.String()+`","permission":"role_manage"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin may check another user", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"user_id":"`+f.member.String()+`","permission":"role_manage"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decodeDecision(t, rec).Allowed)
	})

	t.Run("permission and any_of together", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"permission":"role_manage","any_of":[{"permission":"grant_manage"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("neither permission nor any_of", func(t *testing.T) {
		rec := f.post(t, f.admin, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed permission type", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"permission":"Role Manage"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("type missing from the catalog", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"permission":"rol_manage"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown permission type rol_manage")
	})

	t.Run("owner gets no bypass for a made-up type", func(t *testing.T) {
		rec := f.post(t, f.owner, `{"permission":"anything_goes","organization_id":"`+f.org.String()+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("any_of with one unknown alternative", func(t *testing.T) {
		body := `{"any_of":[{"permission":"role_manage"},{"permission":"crm","organization_id":"` + f.org.String() + `"}]}`
		rec := f.post(t, f.admin, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := f.post(t, f.admin, `{"permission":"role_manage","scope":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthzHandler_MyPermissions(t *testing.T) {
	f := newAuthzFixture()

	get := func(caller shared.ID, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions"+query, nil)
		req = req.WithContext(middleware.WithUserID(req.Context(), caller))
		rec := httptest.NewRecorder()
		f.handler.MyPermissions(rec, req)
		return rec
	}

	t.Run("system scope", func(t *testing.T) {
		rec := get(f.admin, "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp EffectivePermissionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.ElementsMatch(t, []string{"grant_manage", "role_manage"}, resp.Permissions)
		assert.Nil(t, resp.OrganizationID)
	})

	t.Run("owner sees every active organization type", func(t *testing.T) {
		rec := get(f.owner, "?organization_id="+f.org.String())

		require.Equal(t, http.StatusOK, rec.Code)
		var resp EffectivePermissionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.ElementsMatch(t, []string{"collaborator_manage", "organization_view"}, resp.Permissions)
		require.Len(t, resp.Sources["collaborator_manage"], 1)
		assert.Equal(t, "owner", resp.Sources["collaborator_manage"][0].Source)
	})

	t.Run("unknown organization", func(t *testing.T) {
		rec := get(f.owner, "?organization_id="+shared.NewID().String())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed organization id", func(t *testing.T) {
		rec := get(f.owner, "?organization_id=nope")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.MyPermissions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
