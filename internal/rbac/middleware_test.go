package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"callwave/internal/auth"

	"github.com/gin-gonic/gin"
)

func route(role string, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "op-1", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})
	return r
}

func hit(r *gin.Engine) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := hit(route(RoleAdmin, RoleSupervisor)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AllowedRolePasses(t *testing.T) {
	if code := hit(route(RoleSupervisor, RoleSupervisor, RoleViewer)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DisallowedRoleForbidden(t *testing.T) {
	if code := hit(route(RoleViewer, RoleSupervisor)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_MissingRoleUnauthorized(t *testing.T) {
	if code := hit(route("", RoleSupervisor)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
