package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"allowed":true,"permission":"grant_manage","source":"system_role"}`))
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":"FORBIDDEN","message":"missing permission: grant_manage","request_id":"req-1"}`))
		case "/conflict":
			w.WriteHeader(http.StatusConflict)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "tok", false)

	t.Run("success", func(t *testing.T) {
		data, err := client.Get("/ok")
		require.NoError(t, err)
		var d DecisionResponse
		require.NoError(t, unmarshal(data, &d))
		assert.True(t, d.Allowed)
		assert.Equal(t, "system_role", d.Source)
	})

	t.Run("error envelope", func(t *testing.T) {
		_, err := client.Get("/denied")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "FORBIDDEN", apiErr.Code)
		assert.Equal(t, "req-1", apiErr.RequestID)
		assert.Equal(t, "missing permission: grant_manage", apiErr.Error())
	})

	t.Run("empty body falls back to status text", func(t *testing.T) {
		_, err := client.Post("/conflict", map[string]string{"type": "x"})
		require.Error(t, err)
		assert.True(t, isConflict(err))
		assert.Equal(t, "conflict: resource already exists", err.Error())
	})
}

func TestBuildCheckRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		user    string
		org     string
		anyOf   []string
		want    string
		wantErr bool
	}{
		{
			name: "system permission",
			args: []string{"grant_manage"},
			want: `{"permission":"grant_manage"}`,
		},
		{
			name: "organization permission for another user",
			args: []string{"collaborator_manage"},
			user: "u1",
			org:  "o1",
			want: `{"user_id":"u1","permission":"collaborator_manage","organization_id":"o1"}`,
		},
		{
			name:  "any of shares the organization",
			org:   "o1",
			anyOf: []string{"role_manage", "permission_manage"},
			want:  `{"any_of":[{"permission":"role_manage","organization_id":"o1"},{"permission":"permission_manage","organization_id":"o1"}]}`,
		},
		{name: "both", args: []string{"a"}, anyOf: []string{"b"}, wantErr: true},
		{name: "neither", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildCheckRequest(tt.args, tt.user, tt.org, tt.anyOf)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			data, err := json.Marshal(req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestConfigContexts(t *testing.T) {
	cfg := &Config{}
	cfg.SetContext("prod", ContextDetail{APIURL: "https://a", Token: "secret"})
	cfg.SetContext("dev", ContextDetail{APIURL: "http://b", TokenFile: "~/.authz/dev"})
	cfg.SetContext("prod", ContextDetail{APIURL: "https://c", Token: "secret2"})
	cfg.CurrentContext = "prod"

	require.Len(t, cfg.Contexts, 2)
	assert.Equal(t, "https://c", cfg.GetContext("prod").Context.APIURL)

	redacted := cfg.Redacted()
	assert.Equal(t, "REDACTED", redacted.GetContext("prod").Context.Token)
	assert.Equal(t, "secret2", cfg.GetContext("prod").Context.Token)
	assert.Empty(t, redacted.GetContext("dev").Context.Token)

	assert.True(t, cfg.RemoveContext("prod"))
	assert.Empty(t, cfg.CurrentContext)
	assert.False(t, cfg.RemoveContext("prod"))
	assert.Nil(t, cfg.GetContext("prod"))
}
