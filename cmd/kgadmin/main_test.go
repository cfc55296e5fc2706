package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgcore/internal/identity"
	"kgcore/internal/platform/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToken(t *testing.T) {
	t.Setenv("KG_JWT_SIGNING_KEY", "cli-key")

	out, err := execute(t, "token", "--user", "amy", "--role", "alpha:editor", "--role", ":admin")
	require.NoError(t, err)

	jwt := config.FromEnv().JWT
	claims, err := identity.NewTokenService(jwt.SigningKey, jwt.Issuer, jwt.Audience).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "amy", claims.UserID)
	assert.Equal(t, []string{"alpha:editor", ":admin"}, claims.Roles)

	_, err = execute(t, "token")
	assert.ErrorContains(t, err, "--user is required")
}

func TestRequests(t *testing.T) {
	type seen struct {
		method, path, auth string
		body               map[string]any
	}
	var last seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = seen{method: r.Method, path: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&last.body)
		}
		if strings.HasPrefix(r.URL.Path, "/admin/") && last.auth != "Bearer admin" {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	id := uuid.New()

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, "--server", srv.URL, "--token", "amy", "status", id.String(), "--scope", "CHILDREN_ONLY")
		require.NoError(t, err)
		assert.Equal(t, "GET", last.method)
		assert.Equal(t, "/instances/"+id.String()+"/release-status?scope=CHILDREN_ONLY", last.path)
		assert.Equal(t, "Bearer amy", last.auth)
		assert.Contains(t, out, `"ok": true`)
	})

	t.Run("find", func(t *testing.T) {
		_, err := execute(t, "--server", srv.URL, "--token", "amy", "find", "http://example.org/ada", "--stage", "RELEASED")
		require.NoError(t, err)
		assert.Equal(t, "POST", last.method)
		assert.Equal(t, "/instances/find?stage=RELEASED", last.path)
		assert.Equal(t, []any{"http://example.org/ada"}, last.body["identifiers"])
	})

	t.Run("replay surfaces server errors", func(t *testing.T) {
		_, err := execute(t, "--server", srv.URL, "--token", "amy", "replay", id.String())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("failed", func(t *testing.T) {
		_, err := execute(t, "--server", srv.URL, "--token", "admin", "failed", "--limit", "5")
		require.NoError(t, err)
		assert.Equal(t, "/admin/events/failed?limit=5", last.path)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		_, err := execute(t, "--server", srv.URL, "--token", "amy", "events", "nope")
		assert.ErrorContains(t, err, "invalid instance id")
	})

	t.Run("missing token", func(t *testing.T) {
		t.Setenv("KG_TOKEN", "")
		_, err := execute(t, "--server", srv.URL, "failed")
		assert.ErrorContains(t, err, "no token")
	})
}
