package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func protectedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mw := NewAuthMiddleware(secret)
	r.GET("/probe", mw.Handle(), func(c *gin.Context) {
		identity := IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{
			"username": identity.Username,
			"admin":    identity.IsAdmin(),
		})
	})
	return r
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	r := protectedRouter(testSecret)
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	r := protectedRouter(testSecret)
	token := signToken(t, "other-secret", jwt.MapClaims{
		"uid": 1, "username": "admin", "role": RoleAdmin,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for forged token", rec.Code)
	}
}

func TestAuthMiddlewareInjectsIdentity(t *testing.T) {
	r := protectedRouter(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"uid":             float64(42),
		"username":        "admin",
		"role":            RoleAdmin,
		"franchise_scope": "store-7",
		"exp":             time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"username":"admin"`) || !strings.Contains(body, `"admin":true`) {
		t.Fatalf("identity not injected, body = %s", body)
	}
}

func TestIdentityFromContextZeroValueWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	identity := IdentityFromContext(c)
	if identity.IsAdmin() {
		t.Fatalf("zero identity must not be admin")
	}
	if identity.Username != "" || identity.ID != 0 {
		t.Fatalf("zero identity expected, got %+v", identity)
	}
}
