package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"wayfarer/config"
	"wayfarer/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// These tests only exercise paths that reject a request before touching
// MongoDB. DB-backed behaviour lives in the integration suite.

func setupRouter(t *testing.T, register func(r *gin.Engine)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Set(&config.Config{JWTSecret: "test-secret"})
	require.NoError(t, middleware.RegisterValidators())

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	register(r)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestSubmitComment_RejectsBeforeStorage(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.POST("/comments", SubmitComment)
	})
	validAuthor := gin.H{"name": "Ana", "email": "ana@example.com"}

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"empty body", nil, "Request body is required"},
		{"missing resource", gin.H{"resourceType": "blog", "content": "Nice", "author": validAuthor}, "resourceId"},
		{"unknown resource type", gin.H{"resourceType": "video", "resourceId": "x", "content": "Nice", "author": validAuthor}, "resourceType"},
		{"bad parent id", gin.H{"resourceType": "blog", "resourceId": "x", "content": "Nice", "author": validAuthor, "parentId": "123"}, "parentId"},
		{"bad email", gin.H{"resourceType": "blog", "resourceId": "x", "content": "Nice", "author": gin.H{"name": "Ana", "email": "nope"}}, "email"},
		{"short name", gin.H{"resourceType": "blog", "resourceId": "x", "content": "Nice", "author": gin.H{"name": "A", "email": "a@b.co"}}, "name"},
		{"blank content", gin.H{"resourceType": "blog", "resourceId": "x", "content": "   ", "author": validAuthor}, "Comment content is required"},
		{"anonymous without author", gin.H{"resourceType": "blog", "resourceId": "x", "content": "Nice"}, "Author name and email are required"},
		{"profanity", gin.H{"resourceType": "blog", "resourceId": "x", "content": "what a load of bull$hit", "author": validAuthor}, "inappropriate language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, router, http.MethodPost, "/comments", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tt.message)
		})
	}

	t.Run("content too long", func(t *testing.T) {
		long := make([]byte, 2001)
		for i := range long {
			long[i] = 'a'
		}
		w, env := doJSON(t, router, http.MethodPost, "/comments", gin.H{
			"resourceType": "blog", "resourceId": "x", "content": string(long), "author": validAuthor,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, env.Error, "content")
	})
}

func TestGetComments_Validation(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.GET("/comments/:resourceType/:resourceId", GetComments)
	})

	w, env := doJSON(t, router, http.MethodGet, "/comments/video/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid resource type", env.Error)

	w, env = doJSON(t, router, http.MethodGet, "/comments/blog/abc?sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "sort")
}

func TestInvalidIDs(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.POST("/comments/:id/like", LikeComment)
		r.POST("/comments/:id/dislike", DislikeComment)
		r.PUT("/comments/:id", EditComment)
		r.DELETE("/posts/:id", DeletePost)
		r.GET("/templates/:id", GetTemplate)
		r.DELETE("/contact/:id", DeleteContact)
	})

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/comments/not-an-id/like"},
		{http.MethodPost, "/comments/123/dislike"},
		{http.MethodPut, "/comments/zzz"},
		{http.MethodDelete, "/posts/nope"},
		{http.MethodGet, "/templates/nope"},
		{http.MethodDelete, "/contact/nope"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w, env := doJSON(t, router, route.method, route.path, gin.H{"content": "x"})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Invalid id", env.Error)
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.POST("/register", Register)
	})

	tests := []struct {
		name string
		body gin.H
	}{
		{"short password", gin.H{"name": "Ana", "email": "ana@example.com", "password": "123"}},
		{"bad email", gin.H{"name": "Ana", "email": "ana", "password": "secret1"}},
		{"admin role", gin.H{"name": "Ana", "email": "ana@example.com", "password": "secret1", "role": "admin"}},
		{"missing name", gin.H{"email": "ana@example.com", "password": "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, router, http.MethodPost, "/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, env.Errors)
		})
	}
}

func TestTestTemplate_RequiresRecipient(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.POST("/templates/:id/test", TestTemplate)
	})
	w, env := doJSON(t, router, http.MethodPost, "/templates/"+primitive.NewObjectID().Hex()+"/test", gin.H{"data": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "to")
}

func TestUnconfiguredIntegrations(t *testing.T) {
	SetPushKeys("", "", "")
	googleOAuthConfig = nil
	router := setupRouter(t, func(r *gin.Engine) {
		r.GET("/vapid", GetVapidPublicKey)
		r.GET("/google", GoogleAuthURL)
	})

	w, env := doJSON(t, router, http.MethodGet, "/vapid", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Push notifications are not configured", env.Error)

	w, env = doJSON(t, router, http.MethodGet, "/google", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Google sign-in is not configured", env.Error)

	SetPushKeys("public-key", "private-key", "mailto:a@b.co")
	defer SetPushKeys("", "", "")
	w, env = doJSON(t, router, http.MethodGet, "/vapid", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"public-key"}`, string(env.Data))
}

func TestHealth_ReportsDisconnectedDatabase(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.GET("/health", Health)
	})
	w, _ := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disconnected", body["database"])
	assert.Contains(t, body, "uptime")
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, limit int
		total       int64
		want        Pagination
	}{
		{1, 10, 0, Pagination{Page: 1, Limit: 10, Total: 0, TotalPages: 0}},
		{1, 10, 25, Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3, HasNextPage: true}},
		{3, 10, 25, Pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3, HasPrevPage: true}},
		{2, 5, 10, Pagination{Page: 2, Limit: 5, Total: 10, TotalPages: 2, HasPrevPage: true}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewPagination(tt.page, tt.limit, tt.total))
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query       string
		page, limit int
	}{
		{"", 1, defaultLimit},
		{"page=3&limit=20", 3, 20},
		{"page=0&limit=-4", 1, defaultLimit},
		{"page=abc&limit=xyz", 1, defaultLimit},
		{"limit=5000", 1, maxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = &http.Request{URL: &url.URL{RawQuery: tt.query}}
			page, limit := pageParams(c)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
		})
	}
}

func TestIDOrSlug(t *testing.T) {
	id := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": id}, idOrSlug(id.Hex()))
	assert.Equal(t, bson.M{"slug": "kyoto-in-autumn"}, idOrSlug("Kyoto-In-Autumn"))
}

func TestSearchRegexEscapes(t *testing.T) {
	re := searchRegex(" a.b*c ")
	assert.Equal(t, `a\.b\*c`, re["$regex"])
	assert.Equal(t, "i", re["$options"])
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"beach", "food"}, splitList(" beach, ,food,"))
	assert.Equal(t, []string{}, splitList(""))
}

func TestBroadcastWithoutHub(t *testing.T) {
	SetHub(nil)
	assert.NotPanics(t, func() { broadcast("comment_created", gin.H{"id": 1}) })
}
