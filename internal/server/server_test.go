package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/api"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
)

const testToken = "tenancy-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(memorystore.NewIdentityStore(), testToken).Handler(zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Internal-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, out.Bytes()
}

func resolve(t *testing.T, srv *httptest.Server, userID, orgID, email string) api.ResolveResponse {
	t.Helper()

	resp, body := call(t, srv, http.MethodPost, "/internal/resolve", testToken, api.ResolveRequest{
		ClerkUserID: userID,
		ClerkOrgID:  orgID,
		Email:       email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out api.ResolveResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := call(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestHealth_StoreDown(t *testing.T) {
	st := &pingFailStore{IdentityStore: memorystore.NewIdentityStore()}
	srv := httptest.NewServer(NewServer(st, testToken).Handler(zerolog.Nop()))
	defer srv.Close()

	resp, _ := call(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInternalRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{name: "resolve without token", method: http.MethodPost, path: "/internal/resolve"},
		{name: "resolve with wrong token", method: http.MethodPost, path: "/internal/resolve", token: "nope"},
		{name: "user email", method: http.MethodGet, path: "/internal/user-email/" + uuid.NewString()},
		{name: "rename", method: http.MethodPatch, path: "/internal/tenants/" + uuid.NewString() + "/name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, tt.method, tt.path, tt.token, map[string]string{})
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.JSONEq(t, `{"error":"unauthorized"}`, string(body))
		})
	}
}

func TestResolve(t *testing.T) {
	srv := newTestServer(t)

	first := resolve(t, srv, "user_1", "org_1", "a@example.com")
	second := resolve(t, srv, "user_1", "org_1", "a@example.com")
	require.Equal(t, first, second)

	_, err := uuid.Parse(first.UserID)
	require.NoError(t, err)
	_, err = uuid.Parse(first.TenantID)
	require.NoError(t, err)
}

func TestResolve_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing email", body: api.ResolveRequest{ClerkUserID: "user_1", ClerkOrgID: "org_1"}},
		{name: "missing org", body: api.ResolveRequest{ClerkUserID: "user_1", Email: "a@example.com"}},
		{name: "bad email", body: api.ResolveRequest{ClerkUserID: "user_1", ClerkOrgID: "org_1", Email: "nope"}},
		{name: "not an object", body: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, srv, http.MethodPost, "/internal/resolve", testToken, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
		})
	}
}

func TestRenameTenant(t *testing.T) {
	srv := newTestServer(t)

	owner := resolve(t, srv, "user_owner", "org_1", "owner@example.com")
	member := resolve(t, srv, "user_member", "org_1", "member@example.com")
	require.Equal(t, owner.TenantID, member.TenantID)

	renamePath := "/internal/tenants/" + owner.TenantID + "/name"

	t.Run("member is forbidden", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodPatch, renamePath, testToken, api.RenameTenantRequest{UserID: member.UserID, Name: "Hijack"})
		require.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

		_, body = call(t, srv, http.MethodGet, "/internal/tenants/"+owner.TenantID, testToken, nil)
		var tenant api.TenantResponse
		require.NoError(t, json.Unmarshal(body, &tenant))
		require.Equal(t, "tenant-org_1", tenant.Name)
	})

	t.Run("empty name", func(t *testing.T) {
		resp, _ := call(t, srv, http.MethodPatch, renamePath, testToken, api.RenameTenantRequest{UserID: owner.UserID, Name: ""})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid user id", func(t *testing.T) {
		resp, _ := call(t, srv, http.MethodPatch, renamePath, testToken, api.RenameTenantRequest{UserID: "bob", Name: "Acme"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		resp, _ := call(t, srv, http.MethodPatch, "/internal/tenants/"+uuid.NewString()+"/name", testToken, api.RenameTenantRequest{UserID: owner.UserID, Name: "Acme"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("owner renames", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodPatch, renamePath, testToken, api.RenameTenantRequest{UserID: owner.UserID, Name: "Acme"})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		require.JSONEq(t, `{"ok":true}`, string(body))

		_, body = call(t, srv, http.MethodGet, "/internal/tenants/"+owner.TenantID, testToken, nil)
		var tenant api.TenantResponse
		require.NoError(t, json.Unmarshal(body, &tenant))
		require.Equal(t, "Acme", tenant.Name)
	})

	t.Run("duplicate name", func(t *testing.T) {
		other := resolve(t, srv, "user_other", "org_2", "other@example.com")
		resp, _ := call(t, srv, http.MethodPatch, "/internal/tenants/"+other.TenantID+"/name", testToken, api.RenameTenantRequest{UserID: other.UserID, Name: "Acme"})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestUserEmail(t *testing.T) {
	srv := newTestServer(t)

	id := resolve(t, srv, "user_1", "org_1", "a@example.com")

	resp, body := call(t, srv, http.MethodGet, "/internal/user-email/"+id.UserID, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"email":"a@example.com"}`, string(body))

	resp, body = call(t, srv, http.MethodGet, "/internal/user-email/"+uuid.NewString(), testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"email":null}`, string(body))

	resp, _ = call(t, srv, http.MethodGet, "/internal/user-email/not-a-uuid", testToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type pingFailStore struct {
	*memorystore.IdentityStore
}

func (s *pingFailStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}
