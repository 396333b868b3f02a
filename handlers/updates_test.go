package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"wayfarer/email"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUpdateSettingsRequest_SetsOnlySentFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bson.M
	}{
		{
			name: "single feature toggle",
			body: `{"features":{"comments":false}}`,
			want: bson.M{"features.comments": false},
		},
		{
			name: "two toggles",
			body: `{"features":{"newsletter":true,"maintenanceMode":true}}`,
			want: bson.M{"features.newsletter": true, "features.maintenanceMode": true},
		},
		{
			name: "theme colour and tagline",
			body: `{"tagline":"Go further","theme":{"accentColor":"#112233"}}`,
			want: bson.M{"tagline": "Go further", "theme.accentColor": "#112233"},
		},
		{
			name: "empty features object",
			body: `{"features":{}}`,
			want: bson.M{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req updateSettingsRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.updates())
		})
	}
}

func TestUpdateSettings_RejectsEmptyUpdate(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.PUT("/settings", UpdateSettings)
	})

	w, env := doJSON(t, router, http.MethodPut, "/settings", gin.H{"features": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No settings to update", env.Error)

	w, env = doJSON(t, router, http.MethodPut, "/settings", gin.H{"theme": gin.H{"primaryColor": "teal"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "hex colour")
}

func TestSubscribeRequest_KeepsDefaultPreferences(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.NewsletterPreferences
	}{
		{
			name: "no preferences",
			body: `{"email":"jo@example.com"}`,
			want: models.DefaultPreferences(),
		},
		{
			name: "categories only",
			body: `{"email":"jo@example.com","preferences":{"categories":["asia"]}}`,
			want: models.NewsletterPreferences{Weekly: true, Categories: []string{"asia"}},
		},
		{
			name: "weekly opt out",
			body: `{"email":"jo@example.com","preferences":{"weekly":false,"promotions":true}}`,
			want: models.NewsletterPreferences{Weekly: false, Promotions: true, Categories: []string{}},
		},
		{
			name: "null preferences",
			body: `{"email":"jo@example.com","preferences":null}`,
			want: models.DefaultPreferences(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSubscribeRequest()
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.preferences())
		})
	}
}

func TestPreferencesPatch_Updates(t *testing.T) {
	var patch preferencesPatch
	require.NoError(t, json.Unmarshal([]byte(`{"categories":["Asia"," europe "]}`), &patch))
	assert.Equal(t, bson.M{"preferences.categories": []string{"asia", "europe"}}, patch.updates())

	patch = preferencesPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"weekly":false}`), &patch))
	assert.Equal(t, bson.M{"preferences.weekly": false}, patch.updates())
}

func TestUpdatePreferences_RejectsEmptyPatch(t *testing.T) {
	router := setupRouter(t, func(r *gin.Engine) {
		r.PUT("/preferences", UpdatePreferences)
	})

	w, env := doJSON(t, router, http.MethodPut, "/preferences", gin.H{"token": "abc", "preferences": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No preferences to update", env.Error)
}

func TestRunNewsletterExclusive(t *testing.T) {
	t.Cleanup(func() { newsletterRunning.Store(false) })
	ctx := context.Background()

	calls := 0
	run := func(context.Context) (email.Report, error) {
		calls++
		return email.Report{Sent: 3}, nil
	}

	newsletterRunning.Store(true)
	_, err := RunNewsletterExclusive(ctx, run)
	assert.ErrorIs(t, err, ErrNewsletterBusy)
	assert.Zero(t, calls)
	assert.False(t, runNewsletter("campaign", run))

	newsletterRunning.Store(false)
	report, err := RunNewsletterExclusive(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 1, calls)
	assert.False(t, newsletterRunning.Load())
}

func TestSendNewsletter_ConflictWhileSending(t *testing.T) {
	t.Cleanup(func() { newsletterRunning.Store(false) })
	router := setupRouter(t, func(r *gin.Engine) {
		r.POST("/send", SendNewsletter)
	})

	newsletterRunning.Store(true)
	w, env := doJSON(t, router, http.MethodPost, "/send", gin.H{"subject": "Spring", "markdown": "# Hello"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "A newsletter is already being sent", env.Error)
}

func TestModerationUpdate_ClearsFlagsUnlessHidden(t *testing.T) {
	admin := primitive.NewObjectID()
	now := time.Now()

	for _, status := range []string{models.CommentApproved, models.CommentPending, models.CommentFlagged} {
		t.Run(status, func(t *testing.T) {
			set := moderationUpdate(status, "reviewed", admin, now)
			assert.Equal(t, status, set["status"])
			assert.Equal(t, []models.CommentFlag{}, set["flags"])
			assert.Equal(t, admin, set["moderatedBy"])
		})
	}

	set := moderationUpdate(models.CommentHidden, "", admin, now)
	assert.NotContains(t, set, "flags")
}

func TestCommentableFilter(t *testing.T) {
	id := primitive.NewObjectID()

	filter, ok := commentableFilter(models.ResourceBlog, "Hidden-Beaches")
	require.True(t, ok)
	assert.Equal(t, bson.M{"slug": "hidden-beaches", "status": models.PostPublished}, filter)

	filter, ok = commentableFilter(models.ResourceDestination, id.Hex())
	require.True(t, ok)
	assert.Equal(t, bson.M{"_id": id, "isPublished": true}, filter)

	filter, ok = commentableFilter(models.ResourcePhoto, id.Hex())
	require.True(t, ok)
	assert.Equal(t, bson.M{"_id": id, "isPublished": true}, filter)

	_, ok = commentableFilter(models.ResourcePhoto, "sunset")
	assert.False(t, ok)
}
