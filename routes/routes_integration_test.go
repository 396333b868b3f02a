//go:build integration

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/middleware"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var router *gin.Engine

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		fmt.Fprintf(os.Stderr, "start mongodb container: %v\n", err)
		os.Exit(1)
	}
	uri, err := container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		os.Exit(1)
	}
	if err := database.ConnectMongo(uri, "wayfarer_test"); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if err := database.EnsureIndexes(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "indexes: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		JWTSecret:       "integration-secret",
		JWTExpire:       time.Hour,
		FrontendURL:     "http://localhost:3000",
		RateLimitMax:    10000,
		RateLimitWindow: time.Minute,
	}
	config.Set(cfg)
	email.Use(email.NewService(email.LogSender{}, nil, email.Site{Name: "Wayfarer", URL: cfg.FrontendURL}))
	if err := middleware.RegisterValidators(); err != nil {
		fmt.Fprintf(os.Stderr, "validators: %v\n", err)
		os.Exit(1)
	}

	limiters := Limiters{
		Global:     middleware.NewIPRateLimiter(10000, time.Minute),
		Auth:       middleware.NewIPRateLimiter(10000, time.Minute),
		Submission: middleware.NewIPRateLimiter(10000, time.Minute),
	}
	router = SetupRouter(cfg, nil, limiters)

	code := m.Run()

	_ = database.DisconnectMongo()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var res response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func resetCollections(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"users", "posts", "destinations", "comments", "sitesettings", "newsletters"} {
		_, err := database.DB.Collection(name).DeleteMany(ctx, bson.M{})
		require.NoError(t, err)
	}
}

func seedPost(t *testing.T, slug string) models.Post {
	t.Helper()
	now := time.Now()
	post := models.Post{
		ID:          primitive.NewObjectID(),
		Title:       "Hidden Beaches of Bali",
		Slug:        slug,
		Content:     "<p>Sand and sun.</p>",
		Status:      models.PostPublished,
		Author:      primitive.NewObjectID(),
		PublishedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	post.Prepare()
	_, err := database.Posts.InsertOne(context.Background(), post)
	require.NoError(t, err)
	return post
}

func seedDestination(t *testing.T, slug string) models.Destination {
	t.Helper()
	now := time.Now()
	d := models.Destination{
		ID:          primitive.NewObjectID(),
		Name:        "Lisbon",
		Slug:        slug,
		Country:     "Portugal",
		Description: "Hills and trams.",
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.Prepare()
	_, err := database.Destinations.InsertOne(context.Background(), d)
	require.NoError(t, err)
	return d
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateToken(primitive.NewObjectID().Hex(), models.RoleAdmin)
	require.NoError(t, err)
	return token
}

type commentPayload struct {
	Comment models.CommentView `json:"comment"`
}

func submitComment(t *testing.T, body gin.H) (int, response, models.CommentView) {
	t.Helper()
	status, res := call(t, http.MethodPost, "/api/comments", "", body)
	var payload commentPayload
	if status == http.StatusCreated {
		require.NoError(t, json.Unmarshal(res.Data, &payload))
	}
	return status, res, payload.Comment
}

func commentBody(resourceType, resourceID, content string) gin.H {
	return gin.H{
		"resourceType": resourceType,
		"resourceId":   resourceID,
		"author":       gin.H{"name": "Ana Traveler", "email": "ana@example.com"},
		"content":      content,
	}
}

type listPayload struct {
	Comments []struct {
		ID         string `json:"id"`
		Content    string `json:"content"`
		ReplyCount int64  `json:"replyCount"`
		Status     string `json:"status"`
	} `json:"comments"`
	Stats struct {
		Total    int64 `json:"total"`
		TopLevel int64 `json:"topLevel"`
		Replies  int64 `json:"replies"`
		Likes    int64 `json:"likes"`
	} `json:"stats"`
}

func listComments(t *testing.T, path string) listPayload {
	t.Helper()
	status, res := call(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	var payload listPayload
	require.NoError(t, json.Unmarshal(res.Data, &payload))
	return payload
}

func TestSubmitComment_BySlug(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "hidden-beaches")

	status, res, comment := submitComment(t, commentBody("blog", "hidden-beaches", "Great tips, thanks!"))
	require.Equal(t, http.StatusCreated, status, res.Error)
	assert.True(t, res.Success)
	assert.Equal(t, post.ID.Hex(), comment.ResourceID)
	assert.Equal(t, models.CommentApproved, comment.Status)
	assert.Equal(t, "Ana Traveler", comment.Author.Name)

	n, err := database.Comments.CountDocuments(context.Background(), bson.M{"resourceId": post.ID.Hex()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSubmitComment_ResourceChecks(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "hidden-beaches")
	dest := seedDestination(t, "lisbon")

	status, res, _ := submitComment(t, commentBody("blog", "no-such-post", "Hello"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Resource not found", res.Error)

	withParent := commentBody("blog", post.ID.Hex(), "A reply")
	withParent["parentId"] = primitive.NewObjectID().Hex()
	status, res, _ = submitComment(t, withParent)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Parent comment not found", res.Error)

	status, _, onDest := submitComment(t, commentBody("destination", dest.ID.Hex(), "Loved it"))
	require.Equal(t, http.StatusCreated, status)

	crossed := commentBody("blog", post.ID.Hex(), "Wrong thread")
	crossed["parentId"] = onDest.ID.Hex()
	status, res, _ = submitComment(t, crossed)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, res.Error, "different resource")
}

func TestSubmitComment_FeatureDisabled(t *testing.T) {
	resetCollections(t)
	seedPost(t, "hidden-beaches")

	status, res := call(t, http.MethodPut, "/api/settings", adminToken(t), gin.H{"features": gin.H{"comments": false}})
	require.Equal(t, http.StatusOK, status, res.Error)

	var settings models.SiteSettings
	require.NoError(t, json.Unmarshal(res.Data, &settings))
	assert.False(t, settings.Features.Comments)
	assert.True(t, settings.Features.Newsletter)
	assert.True(t, settings.Features.Registration)

	status, res, _ = submitComment(t, commentBody("blog", "hidden-beaches", "Hello"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Comments are disabled", res.Error)

	status, res = call(t, http.MethodPost, "/api/newsletter/subscribe", "", gin.H{"email": "jo@example.com"})
	assert.Equal(t, http.StatusCreated, status, res.Error)
}

func TestSubmitComment_UnpublishedResource(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "draft-notes")
	_, err := database.Posts.UpdateOne(context.Background(), bson.M{"_id": post.ID},
		bson.M{"$set": bson.M{"status": models.PostDraft}})
	require.NoError(t, err)

	status, res, _ := submitComment(t, commentBody("blog", post.ID.Hex(), "First!"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Resource not found", res.Error)

	dest := seedDestination(t, "porto")
	_, err = database.Destinations.UpdateOne(context.Background(), bson.M{"_id": dest.ID},
		bson.M{"$set": bson.M{"isPublished": false}})
	require.NoError(t, err)

	status, _, _ = submitComment(t, commentBody("destination", "porto", "Lovely"))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFlagComment_AutoHidesAtThree(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "hidden-beaches")

	_, _, visible := submitComment(t, commentBody("blog", post.ID.Hex(), "Helpful"))
	_, _, spam := submitComment(t, commentBody("blog", post.ID.Hex(), "Buy cheap flights here"))
	path := "/api/comments/" + spam.ID.Hex() + "/flag"

	for i := 1; i <= 3; i++ {
		status, res := call(t, http.MethodPost, path, "", gin.H{
			"reason":        "spam",
			"reporterEmail": fmt.Sprintf("reader%d@example.com", i),
		})
		require.Equal(t, http.StatusOK, status, res.Error)

		var flagged struct {
			FlagCount int    `json:"flagCount"`
			Status    string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(res.Data, &flagged))
		assert.Equal(t, i, flagged.FlagCount)
		if i < 3 {
			assert.Equal(t, models.CommentApproved, flagged.Status)
		} else {
			assert.Equal(t, models.CommentHidden, flagged.Status)
		}
	}

	status, res := call(t, http.MethodPost, path, "", gin.H{"reason": "spam", "reporterEmail": "reader1@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "You have already flagged this comment", res.Error)

	list := listComments(t, "/api/comments/blog/"+post.ID.Hex())
	require.Len(t, list.Comments, 1)
	assert.Equal(t, visible.ID.Hex(), list.Comments[0].ID)
	assert.EqualValues(t, 1, list.Stats.Total)
}

func TestGetComments_RepliesAndStats(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "hidden-beaches")

	_, _, parent := submitComment(t, commentBody("blog", "hidden-beaches", "Top level"))
	for i := 0; i < 2; i++ {
		reply := commentBody("blog", "hidden-beaches", fmt.Sprintf("Reply %d", i))
		reply["parentId"] = parent.ID.Hex()
		status, res, _ := submitComment(t, reply)
		require.Equal(t, http.StatusCreated, status, res.Error)
	}
	status, _ := call(t, http.MethodPost, "/api/comments/"+parent.ID.Hex()+"/like", "", nil)
	require.Equal(t, http.StatusOK, status)

	top := listComments(t, "/api/comments/blog/"+post.ID.Hex())
	require.Len(t, top.Comments, 1)
	assert.EqualValues(t, 2, top.Comments[0].ReplyCount)
	assert.EqualValues(t, 3, top.Stats.Total)
	assert.EqualValues(t, 1, top.Stats.TopLevel)
	assert.EqualValues(t, 2, top.Stats.Replies)
	assert.EqualValues(t, 1, top.Stats.Likes)

	replies := listComments(t, "/api/comments/blog/hidden-beaches?parentId="+parent.ID.Hex())
	assert.Len(t, replies.Comments, 2)
}

func TestDeleteComment_RemovesReplies(t *testing.T) {
	resetCollections(t)
	post := seedPost(t, "hidden-beaches")

	_, _, parent := submitComment(t, commentBody("blog", post.ID.Hex(), "Parent"))
	_, _, other := submitComment(t, commentBody("blog", post.ID.Hex(), "Unrelated"))
	reply := commentBody("blog", post.ID.Hex(), "Child")
	reply["parentId"] = parent.ID.Hex()
	_, _, child := submitComment(t, reply)

	status, res := call(t, http.MethodDelete, "/api/comments/"+parent.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusForbidden, status, res.Error)

	status, res = call(t, http.MethodDelete, "/api/comments/"+parent.ID.Hex(), adminToken(t), nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.JSONEq(t, `{"deleted":2}`, string(res.Data))

	ctx := context.Background()
	for id, want := range map[primitive.ObjectID]int64{parent.ID: 0, child.ID: 0, other.ID: 1} {
		n, err := database.Comments.CountDocuments(ctx, bson.M{"_id": id})
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	resetCollections(t)
	body := gin.H{"name": "Ana", "email": "ana@example.com", "password": "secret1"}

	status, res := call(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, status, res.Error)

	body["email"] = "ANA@example.com"
	status, res = call(t, http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email already registered", res.Error)

	status, res = call(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, status, res.Error)

	status, res = call(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, res.Error)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &auth))
	assert.NotEmpty(t, auth.Token)
}

func TestNewsletter_SubscribeTwice(t *testing.T) {
	resetCollections(t)

	status, res := call(t, http.MethodPost, "/api/newsletter/subscribe", "", gin.H{"email": "jo@example.com"})
	require.Equal(t, http.StatusCreated, status, res.Error)

	status, res = call(t, http.MethodPost, "/api/newsletter/subscribe", "", gin.H{"email": "jo@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "This email is already subscribed", res.Error)

	status, res = call(t, http.MethodPost, "/api/newsletter/unsubscribe", "", gin.H{"email": "jo@example.com"})
	require.Equal(t, http.StatusOK, status, res.Error)

	status, res = call(t, http.MethodPost, "/api/newsletter/subscribe", "", gin.H{"email": "jo@example.com"})
	assert.Equal(t, http.StatusCreated, status, res.Error)
}

func TestNewsletter_PartialPreferences(t *testing.T) {
	resetCollections(t)

	status, res := call(t, http.MethodPost, "/api/newsletter/subscribe", "", gin.H{
		"email":       "kim@example.com",
		"preferences": gin.H{"categories": []string{"asia"}},
	})
	require.Equal(t, http.StatusCreated, status, res.Error)

	var sub models.Newsletter
	require.NoError(t, database.Newsletters.FindOne(context.Background(), bson.M{"email": "kim@example.com"}).Decode(&sub))
	assert.True(t, sub.Preferences.Weekly)
	assert.Equal(t, []string{"asia"}, sub.Preferences.Categories)

	status, res = call(t, http.MethodPut, "/api/newsletter/preferences", "", gin.H{
		"token":       sub.UnsubscribeToken,
		"preferences": gin.H{"promotions": true},
	})
	require.Equal(t, http.StatusOK, status, res.Error)

	var prefs models.NewsletterPreferences
	require.NoError(t, json.Unmarshal(res.Data, &prefs))
	assert.True(t, prefs.Weekly)
	assert.True(t, prefs.Promotions)
	assert.Equal(t, []string{"asia"}, prefs.Categories)
}

func TestProtectedRoutes(t *testing.T) {
	status, res := call(t, http.MethodGet, "/api/admin/comments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, res.Success)

	reader, err := middleware.GenerateToken(primitive.NewObjectID().Hex(), models.RoleReader)
	require.NoError(t, err)
	status, _ = call(t, http.MethodGet, "/api/admin/comments", reader, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, res = call(t, http.MethodGet, "/api/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, res.Error, "Route not found")
}
