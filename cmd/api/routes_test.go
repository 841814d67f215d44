package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecall-platform/internal/auth"
	"voicecall-platform/internal/config"
	"voicecall-platform/internal/httpapi"
	"voicecall-platform/internal/metrics"
	"voicecall-platform/internal/rbac"
)

func testRouter(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewManager(config.AuthConfig{JWTSecret: "s", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	h := httpapi.Handlers{
		Tokens: tokens,
		Passwords: auth.NewAuthenticator(
			auth.Credential{Role: rbac.RoleOperator, Password: "ops"},
			auth.Credential{Role: rbac.RoleViewer, Password: "view"},
		),
	}
	r := gin.New()
	registerRoutes(r, h, auth.RequireAccessToken(tokens), reg)
	return r, tokens
}

func request(r http.Handler, method, path, token string, body any) int {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	r, _ := testRouter(t)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/healthz", "", nil))
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/metrics", "", nil))
	assert.Equal(t, http.StatusOK, request(r, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "ana", "password": "ops"}))
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/v1/calls", "", nil))
}

func TestRoutes_RoleGates(t *testing.T) {
	r, tokens := testRouter(t)
	now := time.Now()
	viewer, err := tokens.IssuePair(now, "vera", rbac.RoleViewer)
	require.NoError(t, err)
	operator, err := tokens.IssuePair(now, "omar", rbac.RoleOperator)
	require.NoError(t, err)
	admin, err := tokens.IssuePair(now, "root", rbac.RoleAdmin)
	require.NoError(t, err)

	// Handlers without services answer 500; anything but 401/403 means the gate let it through.
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/v1/calls", viewer.AccessToken, map[string]any{}))
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodDelete, "/v1/calls/btcal_1/poll", viewer.AccessToken, nil))
	assert.Equal(t, http.StatusInternalServerError, request(r, http.MethodGet, "/v1/stats", viewer.AccessToken, nil))

	assert.Equal(t, http.StatusInternalServerError, request(r, http.MethodPost, "/v1/calls", operator.AccessToken, map[string]any{}))
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/v1/agents/agent_1/verify", operator.AccessToken, nil))

	assert.Equal(t, http.StatusInternalServerError, request(r, http.MethodGet, "/v1/agents/agent_1/verify", admin.AccessToken, nil))
}
