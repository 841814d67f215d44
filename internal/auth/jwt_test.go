package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "ana", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "ana" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired access token to fail")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	p, err := m.IssuePair(now, "u", "viewer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestRefreshKeepsIdentity(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "ana", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	next, claims, err := m.Refresh(p.RefreshToken, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if claims.Role != "admin" || next.AccessToken == p.AccessToken {
		t.Fatalf("unexpected refresh result %+v", claims)
	}
	if _, _, err := m.Refresh(p.AccessToken, now); err == nil {
		t.Fatalf("expected access token to be rejected for refresh")
	}
}

func TestAuthenticatorLogin(t *testing.T) {
	a := NewAuthenticator(
		Credential{Role: "admin", Password: "root-pw"},
		Credential{Role: "operator", Password: "ops-pw"},
		Credential{Role: "viewer", Password: ""},
	)
	if role, err := a.Login("ana", "ops-pw"); err != nil || role != "operator" {
		t.Fatalf("expected operator, got %q %v", role, err)
	}
	if role, err := a.Login("ana", "root-pw"); err != nil || role != "admin" {
		t.Fatalf("expected admin, got %q %v", role, err)
	}
	for _, pw := range []string{"", "nope"} {
		if _, err := a.Login("ana", pw); err != ErrInvalidCredentials {
			t.Fatalf("expected invalid credentials for %q, got %v", pw, err)
		}
	}
	if _, err := a.Login(" ", "ops-pw"); err != ErrInvalidCredentials {
		t.Fatalf("expected username to be required")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testManager(t)
	pair, err := m.IssuePair(time.Now(), "ana", "viewer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		role, _ := Role(c.Request.Context())
		c.String(http.StatusOK, role)
	})

	cases := map[string]int{
		"":                            http.StatusUnauthorized,
		"Bearer garbage":              http.StatusUnauthorized,
		"Bearer " + pair.RefreshToken: http.StatusUnauthorized,
		"Bearer " + pair.AccessToken:  http.StatusOK,
	}
	for header, want := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("header %q: expected %d, got %d", header, want, w.Code)
		}
	}
}
