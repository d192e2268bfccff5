package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/private", JWTMiddleware(opts), func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func do(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	router := newRouter(Options{Secret: testSecret})
	token := signToken(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	resp := do(router, "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Body.String() != "user-123" {
		t.Fatalf("expected subject in context, got %q", resp.Body.String())
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	cases := []struct {
		name   string
		opts   Options
		header string
	}{
		{name: "missing header", opts: Options{Secret: testSecret}},
		{name: "wrong scheme", opts: Options{Secret: testSecret}, header: "Basic abc"},
		{name: "garbage token", opts: Options{Secret: testSecret}, header: "Bearer not-a-jwt"},
		{name: "expired", opts: Options{Secret: testSecret}, header: "Bearer " + signToken(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})},
		{name: "wrong algorithm", opts: Options{Secret: testSecret}, header: "Bearer " + signToken(t, jwt.SigningMethodHS512, valid)},
		{name: "wrong audience", opts: Options{Secret: testSecret, Audience: "ml-gateway"}, header: "Bearer " + signToken(t, jwt.SigningMethodHS256, valid)},
		{name: "missing subject", opts: Options{Secret: testSecret}, header: "Bearer " + signToken(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})},
		{name: "no secret", opts: Options{}, header: "Bearer " + signToken(t, jwt.SigningMethodHS256, valid)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(newRouter(tc.opts), tc.header)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
			}
		})
	}
}
