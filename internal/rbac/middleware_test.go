package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/auth"
)

func serveAs(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", role))
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveAs(RoleAdmin, RoleOperator); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serveAs(RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected admin-only route to admit admin, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotDispatch(t *testing.T) {
	if code := serveAs(RoleViewer, Dispatchers...); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs(RoleViewer, Readers...); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	if code := serveAs("super_admin", "super_admin"); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveAs("", RoleViewer); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
