package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/pkg/catalog"
)

// catalogServer is an in-memory stand-in for the permission and role
// collections of one scope.
type catalogServer struct {
	mu    sync.Mutex
	perms []PermissionResponse
	roles []RoleResponse
	posts int
}

func (s *catalogServer) handler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.URL.Path == prefix+"/permissions" && r.Method == http.MethodGet:
			writeList(w, s.perms)
		case r.URL.Path == prefix+"/roles" && r.Method == http.MethodGet:
			writeList(w, s.roles)
		case r.URL.Path == prefix+"/permissions" && r.Method == http.MethodPost:
			s.posts++
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			p := PermissionResponse{ID: fmt.Sprintf("perm-%d", len(s.perms)+1), Type: body["type"], Name: body["name"], IsActive: true}
			s.perms = append(s.perms, p)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(p)
		case r.URL.Path == prefix+"/roles" && r.Method == http.MethodPost:
			s.posts++
			var body struct {
				Type          string   `json:"type"`
				Name          string   `json:"name"`
				PermissionIDs []string `json:"permission_ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			ro := RoleResponse{ID: fmt.Sprintf("role-%d", len(s.roles)+1), Type: body.Type, Name: body.Name, PermissionIDs: body.PermissionIDs}
			s.roles = append(s.roles, ro)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(ro)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	_ = json.NewEncoder(w).Encode(ListResponse[T]{Data: items, Total: int64(len(items)), Page: 1, PerPage: 100, TotalPages: 1})
}

const testCatalog = `
permissions:
  - type: report_view
    name: View reports
  - type: report_manage
    name: Manage reports
roles:
  - type: auditor
    name: Auditor
    permissions: [report_view]
`

func parseTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse(strings.NewReader(testCatalog))
	require.NoError(t, err)
	return c
}

func TestApplyCatalog(t *testing.T) {
	t.Run("system scope is idempotent", func(t *testing.T) {
		state := &catalogServer{}
		srv := httptest.NewServer(state.handler("/api/v1/system"))
		defer srv.Close()
		client := NewClient(srv.URL, "tok", false)

		result, err := applyCatalog(client, parseTestCatalog(t), "", false)
		require.NoError(t, err)
		assert.Equal(t, &ApplyResult{PermissionsCreated: 2, RolesCreated: 1}, result)

		require.Len(t, state.roles, 1)
		assert.Equal(t, []string{"perm-1"}, state.roles[0].PermissionIDs)

		result, err = applyCatalog(client, parseTestCatalog(t), "", false)
		require.NoError(t, err)
		assert.Equal(t, &ApplyResult{PermissionsSkipped: 2, RolesSkipped: 1}, result)
		assert.Equal(t, 3, state.posts)
	})

	t.Run("organization scope reuses existing permissions", func(t *testing.T) {
		state := &catalogServer{perms: []PermissionResponse{{ID: "existing", Type: "report_view"}}}
		srv := httptest.NewServer(state.handler("/api/v1/organizations/org-1"))
		defer srv.Close()
		client := NewClient(srv.URL, "tok", false)

		result, err := applyCatalog(client, parseTestCatalog(t), "org-1", false)
		require.NoError(t, err)
		assert.Equal(t, &ApplyResult{PermissionsCreated: 1, PermissionsSkipped: 1, RolesCreated: 1}, result)
		assert.Equal(t, []string{"existing"}, state.roles[0].PermissionIDs)
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		state := &catalogServer{}
		srv := httptest.NewServer(state.handler("/api/v1/system"))
		defer srv.Close()
		client := NewClient(srv.URL, "tok", false)

		result, err := applyCatalog(client, parseTestCatalog(t), "", true)
		require.NoError(t, err)
		assert.Equal(t, &ApplyResult{PermissionsCreated: 2, RolesCreated: 1, DryRun: true}, result)
		assert.Zero(t, state.posts)
	})
}

func TestResolvePermissionTypes(t *testing.T) {
	state := &catalogServer{perms: []PermissionResponse{{ID: "p1", Type: "report_view"}, {ID: "p2", Type: "report_manage"}}}
	srv := httptest.NewServer(state.handler("/api/v1/system"))
	defer srv.Close()
	client := NewClient(srv.URL, "tok", false)

	ids, err := resolvePermissionTypes(client, "", []string{"report_manage", " report_view"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids)

	_, err = resolvePermissionTypes(client, "", []string{"report_view", "nope"})
	require.ErrorContains(t, err, "nope")

	ids, err = resolvePermissionTypes(client, "", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
