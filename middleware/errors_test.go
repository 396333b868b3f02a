package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"wayfarer/apperror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestErrorHandler_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, hexErr := primitive.ObjectIDFromHex("nope")
	dupErr := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: `E11000 duplicate key error collection: wayfarer.users index: email_1 dup key: { email: "jo@x.com" }`,
	}}}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"app error", apperror.NotFound("Post not found"), http.StatusNotFound, "Post not found"},
		{"invalid id", hexErr, http.StatusBadRequest, "Invalid id"},
		{"duplicate key", dupErr, http.StatusBadRequest, "Duplicate field value: email"},
		{"expired token", fmt.Errorf("parse: %w", jwt.ErrTokenExpired), http.StatusUnauthorized, "Token expired"},
		{"bad signature", jwt.ErrTokenSignatureInvalid, http.StatusUnauthorized, "Invalid token"},
		{"no documents", mongo.ErrNoDocuments, http.StatusNotFound, "Resource not found"},
		{"internal app error", apperror.Internal("secret detail", errors.New("boom")), http.StatusInternalServerError, "Internal server error"},
		{"unknown", errors.New("connection refused 10.0.0.3"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandler())
			router.GET("/", func(c *gin.Context) {
				_ = c.Error(tt.err)
				c.Abort()
			})

			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			assert.NotContains(t, w.Body.String(), "10.0.0.3")
			assert.NotContains(t, w.Body.String(), "secret detail")
		})
	}
}

func TestErrorHandler_ValidationErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	router := gin.New()
	router.Use(ErrorHandler())
	router.POST("/", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
			Name  string `json:"name" binding:"required,min=2"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest(http.MethodPost, "/", stringsReader(`{"email":"nope","name":"J"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email must be a valid email")
	assert.Contains(t, w.Body.String(), "name must be at least 2 characters")
}

func TestNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.NoRoute(NotFound())

	req, _ := http.NewRequest(http.MethodGet, "/api/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Route not found: /api/missing"}`, w.Body.String())
}
