package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cems/config"
	"cems/internal/model"
	"cems/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:               "test-secret-0123456789",
		AccessTokenTTL:          time.Hour,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 168 * time.Hour,
	})
}

func do(r *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	mgr := testJWT()
	access, _ := mgr.GenerateAccessToken("u-1", "student")
	refresh, _ := mgr.GenerateRefreshToken("u-1", "student", false)

	r := gin.New()
	r.GET("/p", JWTAuth(mgr, nil, zap.NewNop()), func(c *gin.Context) {
		if c.GetString(CtxTokenJTI) == "" {
			t.Error("应写入 token_jti")
		}
		c.String(http.StatusOK, c.GetString(CtxUserID)+"|"+c.GetString(CtxRole))
	})

	if w := do(r, "GET", "/p", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("缺少 token 期望 401，实际 %d", w.Code)
	}
	if w := do(r, "GET", "/p", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("非法 token 期望 401，实际 %d", w.Code)
	}
	if w := do(r, "GET", "/p", refresh); w.Code != http.StatusUnauthorized {
		t.Errorf("refresh token 不能访问接口，实际 %d", w.Code)
	}
	w := do(r, "GET", "/p", access)
	if w.Code != http.StatusOK || w.Body.String() != "u-1|student" {
		t.Errorf("合法 token 期望 200 u-1|student，实际 %d %s", w.Code, w.Body.String())
	}
}

func TestOptionalAuth(t *testing.T) {
	mgr := testJWT()
	access, _ := mgr.GenerateAccessToken("u-2", "organizer")

	r := gin.New()
	r.GET("/p", OptionalAuth(mgr), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserID))
	})

	if w := do(r, "GET", "/p", ""); w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("匿名应放行且无用户，实际 %d %q", w.Code, w.Body.String())
	}
	if w := do(r, "GET", "/p", "garbage"); w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("非法 token 按匿名处理，实际 %d %q", w.Code, w.Body.String())
	}
	if w := do(r, "GET", "/p", access); w.Body.String() != "u-2" {
		t.Errorf("期望 u-2，实际 %q", w.Body.String())
	}
}

func TestRoleAuth(t *testing.T) {
	cases := []struct {
		role   string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"student", http.StatusForbidden},
		{"organizer", http.StatusOK},
		{"admin", http.StatusOK},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/p", func(c *gin.Context) {
			if tc.role != "" {
				c.Set(CtxRole, tc.role)
			}
			c.Next()
		}, RoleAuth(model.RoleOrganizer, model.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		if w := do(r, "GET", "/p", ""); w.Code != tc.status {
			t.Errorf("角色 %q 期望 %d，实际 %d", tc.role, tc.status, w.Code)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/p", BodyLimit(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("POST", "/p", strings.NewReader("0123456789"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("超限期望 413，实际 %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/p", strings.NewReader("0123"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("未超限期望 200，实际 %d", w.Code)
	}
}

func TestRateLimit_NilClientPasses(t *testing.T) {
	r := gin.New()
	r.GET("/p", RateLimit(nil, 1, time.Minute, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if w := do(r, "GET", "/p", ""); w.Code != http.StatusOK {
			t.Fatalf("Redis 不可用时应降级放行，第 %d 次 %d", i+1, w.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/p", RequestID(), func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set(requestIDHeader, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "trace-1" || w.Header().Get(requestIDHeader) != "trace-1" {
		t.Errorf("应透传请求 ID，实际 %q", w.Body.String())
	}

	w = do(r, "GET", "/p", "")
	if len(w.Body.String()) != 36 {
		t.Errorf("应生成 uuid，实际 %q", w.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/uploads/qr/a.png", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := do(r, "GET", "/api/x", ""); w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("API 应禁止缓存，实际 %q", w.Header().Get("Cache-Control"))
	}
	if w := do(r, "GET", "/uploads/qr/a.png", ""); !strings.HasPrefix(w.Header().Get("Cache-Control"), "private") {
		t.Errorf("凭证文件应私有缓存，实际 %q", w.Header().Get("Cache-Control"))
	}
}
