package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wayfarer/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func setupAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Set(&config.Config{JWTSecret: testSecret, JWTExpire: time.Hour})

	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/private", Protect(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetString(ContextUserID), "role": c.GetString(ContextRole)})
	})
	router.GET("/admin", Protect(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/optional", OptionalAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetString(ContextUserID)})
	})
	return router
}

func get(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signWith(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestProtect_ValidToken(t *testing.T) {
	router := setupAuthRouter(t)

	token, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718", "reader")
	require.NoError(t, err)

	w := get(router, "/private", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"64b7f0c2a1b2c3d4e5f60718"`)
	assert.Contains(t, w.Body.String(), `"role":"reader"`)
}

func TestProtect_TokenFromQuery(t *testing.T) {
	router := setupAuthRouter(t)

	token, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718", "admin")
	require.NoError(t, err)

	w := get(router, "/private?token="+token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtect_Rejects(t *testing.T) {
	router := setupAuthRouter(t)

	valid, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718", "reader")
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	forgedPayload := base64.RawURLEncoding.EncodeToString([]byte(`{"id":"64b7f0c2a1b2c3d4e5f60718","role":"admin"}`))

	expired := signWith(t, testSecret, &Claims{
		UserID: "64b7f0c2a1b2c3d4e5f60718",
		Role:   "reader",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"missing", "", "Not authorized, no token"},
		{"malformed", "not-a-token", "Invalid token"},
		{"tampered payload", parts[0] + "." + forgedPayload + "." + parts[2], "Invalid token"},
		{"wrong secret", signWith(t, "other-secret", &Claims{UserID: "x", Role: "admin"}), "Invalid token"},
		{"expired", expired, "Token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, "/private", tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestRestrictTo_WrongRole(t *testing.T) {
	router := setupAuthRouter(t)

	reader, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718", "reader")
	require.NoError(t, err)
	admin, err := GenerateToken("64b7f0c2a1b2c3d4e5f60719", "admin")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(router, "/admin", reader).Code)
	assert.Equal(t, http.StatusNoContent, get(router, "/admin", admin).Code)
}

func TestOptionalAuth(t *testing.T) {
	router := setupAuthRouter(t)

	w := get(router, "/optional", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":""`)

	token, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718", "reader")
	require.NoError(t, err)
	w = get(router, "/optional", token)
	assert.Contains(t, w.Body.String(), `"userId":"64b7f0c2a1b2c3d4e5f60718"`)
}
