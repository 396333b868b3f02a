package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidators(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	router := gin.New()
	router.Use(ErrorHandler())
	router.POST("/", func(c *gin.Context) {
		var req struct {
			ResourceType string `json:"resourceType" binding:"required,resourcetype"`
			ParentID     string `json:"parentId" binding:"omitempty,objectid"`
			Slug         string `json:"slug" binding:"omitempty,slug"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"valid", `{"resourceType":"blog","parentId":"64b7f0c2a1b2c3d4e5f60718","slug":"paris-in-spring"}`, http.StatusOK, ""},
		{"bad resource type", `{"resourceType":"video"}`, http.StatusBadRequest, "resourceType must be one of"},
		{"bad parent id", `{"resourceType":"guide","parentId":"123"}`, http.StatusBadRequest, "parentId must be a valid id"},
		{"bad slug", `{"resourceType":"photo","slug":"Not A Slug"}`, http.StatusBadRequest, "slug is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "/", stringsReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.msg != "" {
				assert.Contains(t, w.Body.String(), tt.msg)
			}
		})
	}
}
