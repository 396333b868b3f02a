package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"wayfarer/apperror"
	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/logger"
	"wayfarer/markdown"
	"wayfarer/models"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const newsletterRunTimeout = 2 * time.Hour

var (
	newsletterJob     *email.Newsletter
	newsletterRunning atomic.Bool
)

// SetNewsletter installs the job used by the admin send endpoints.
func SetNewsletter(n *email.Newsletter) {
	newsletterJob = n
}

func newsletter() *email.Newsletter {
	if newsletterJob == nil {
		newsletterJob = email.NewNewsletter(email.Default(), nil, config.Get().NewsletterBatchDelay)
	}
	return newsletterJob
}

// ErrNewsletterBusy is returned while another newsletter send is running.
var ErrNewsletterBusy = errors.New("a newsletter is already being sent")

// RunNewsletterExclusive runs a send in the caller's goroutine unless one is
// already in progress. The scheduler and the admin endpoints share the guard.
func RunNewsletterExclusive(ctx context.Context, run func(ctx context.Context) (email.Report, error)) (email.Report, error) {
	if !newsletterRunning.CompareAndSwap(false, true) {
		return email.Report{}, ErrNewsletterBusy
	}
	defer newsletterRunning.Store(false)
	return run(ctx)
}

// runNewsletter starts run in the background unless a send is already in
// progress.
func runNewsletter(kind string, run func(ctx context.Context) (email.Report, error)) bool {
	if !newsletterRunning.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer newsletterRunning.Store(false)
		defer func() {
			if r := recover(); r != nil {
				logger.Log.WithField("kind", kind).Errorf("Panic in newsletter send: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), newsletterRunTimeout)
		defer cancel()

		log := logger.Log.WithField("kind", kind)
		report, err := run(ctx)
		if err != nil {
			log.WithError(err).Error("Newsletter send failed")
		}
		broadcast(websocket.EventNewsletterFinish, gin.H{"kind": kind, "report": report})
	}()
	return true
}

type subscribeRequest struct {
	Email       string                        `json:"email" binding:"required,email"`
	Name        string                        `json:"name" binding:"max=80"`
	Preferences *models.NewsletterPreferences `json:"preferences"`
	Source      string                        `json:"source" binding:"max=40"`
}

// newSubscribeRequest seeds the default preferences so a partial
// preferences object only overrides the fields it names.
func newSubscribeRequest() subscribeRequest {
	prefs := models.DefaultPreferences()
	return subscribeRequest{Preferences: &prefs}
}

func (r *subscribeRequest) preferences() models.NewsletterPreferences {
	if r.Preferences == nil {
		return models.DefaultPreferences()
	}
	prefs := *r.Preferences
	if prefs.Categories == nil {
		prefs.Categories = []string{}
	}
	return prefs
}

// POST /api/newsletter/subscribe
func Subscribe(c *gin.Context) {
	req := newSubscribeRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	settings, err := loadSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	if !settings.Features.Newsletter {
		fail(c, apperror.Forbidden("Newsletter signups are disabled"))
		return
	}

	addr := models.NormalizeEmail(req.Email)
	prefs := req.preferences()

	var existing models.Newsletter
	err = database.Newsletters.FindOne(ctx, bson.M{"email": addr}).Decode(&existing)
	switch {
	case err == nil && existing.IsActive():
		fail(c, apperror.BadRequest("This email is already subscribed"))
		return
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		fail(c, err)
		return
	}

	now := time.Now()
	sub := models.Newsletter{
		ID:                primitive.NewObjectID(),
		Email:             addr,
		Name:              strings.TrimSpace(req.Name),
		Status:            models.SubscriberActive,
		Preferences:       prefs,
		VerificationToken: uuid.NewString(),
		UnsubscribeToken:  uuid.NewString(),
		Source:            req.Source,
		SubscribedAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if existing.ID.IsZero() {
		_, err = database.Newsletters.InsertOne(ctx, sub)
	} else {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		sub.IsVerified = existing.IsVerified
		_, err = database.Newsletters.ReplaceOne(ctx, bson.M{"_id": existing.ID}, sub)
	}
	if err != nil {
		fail(c, err)
		return
	}

	site := email.Default().Site()
	email.Default().SendTemplateAsync(email.TemplateNewsletterConfirm, sub.Email, map[string]any{
		"name":           sub.DisplayName(),
		"verifyUrl":      email.VerifyURL(site.URL, sub.VerificationToken),
		"unsubscribeUrl": email.UnsubscribeURL(site.URL, sub.UnsubscribeToken),
	})

	logger.Handler("Subscribe").WithField("resubscribed", !existing.ID.IsZero()).Info("Newsletter subscription")
	respond(c, http.StatusCreated, sub)
}

// GET /api/newsletter/verify/:token
func VerifySubscription(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Newsletters.UpdateOne(ctx,
		bson.M{"verificationToken": c.Param("token")},
		bson.M{
			"$set":   bson.M{"isVerified": true, "updatedAt": time.Now()},
			"$unset": bson.M{"verificationToken": ""},
		},
	)
	if err != nil {
		fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		fail(c, apperror.BadRequest("Invalid or expired verification link"))
		return
	}
	respond(c, http.StatusOK, gin.H{"verified": true})
}

// POST /api/newsletter/unsubscribe
func Unsubscribe(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"omitempty,email"`
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	var filter bson.M
	switch {
	case req.Token != "":
		filter = bson.M{"unsubscribeToken": req.Token}
	case req.Email != "":
		filter = bson.M{"email": models.NormalizeEmail(req.Email)}
	default:
		fail(c, apperror.BadRequest("Email or token is required"))
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	now := time.Now()
	res, err := database.Newsletters.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status":         models.SubscriberUnsubscribed,
		"unsubscribedAt": now,
		"updatedAt":      now,
	}})
	if err != nil {
		fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		fail(c, apperror.NotFound("Subscription not found"))
		return
	}
	respond(c, http.StatusOK, gin.H{"unsubscribed": true})
}

type preferencesPatch struct {
	Weekly     *bool    `json:"weekly"`
	Promotions *bool    `json:"promotions"`
	Categories []string `json:"categories" binding:"omitempty,max=20,dive,max=40"`
}

// updates returns the $set entries for the preference fields that were sent.
func (p preferencesPatch) updates() bson.M {
	set := bson.M{}
	if p.Weekly != nil {
		set["preferences.weekly"] = *p.Weekly
	}
	if p.Promotions != nil {
		set["preferences.promotions"] = *p.Promotions
	}
	if p.Categories != nil {
		set["preferences.categories"] = cleanTags(p.Categories)
	}
	return set
}

// PUT /api/newsletter/preferences
func UpdatePreferences(c *gin.Context) {
	var req struct {
		Token       string           `json:"token" binding:"required"`
		Preferences preferencesPatch `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	set := req.Preferences.updates()
	if len(set) == 0 {
		fail(c, apperror.BadRequest("No preferences to update"))
		return
	}
	set["updatedAt"] = time.Now()

	ctx, cancel := dbContext(c)
	defer cancel()

	var sub models.Newsletter
	err := database.Newsletters.FindOneAndUpdate(ctx,
		bson.M{"unsubscribeToken": req.Token},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("Subscription not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, sub.Preferences)
}

// GET /api/newsletter/subscribers
func ListSubscribers(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}
	if verified, ok := queryBool(c, "verified"); ok {
		filter["isVerified"] = verified
	}
	if search := c.Query("search"); search != "" {
		re := searchRegex(search)
		filter["$or"] = bson.A{bson.M{"email": re}, bson.M{"name": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	subs, total, err := findPage[models.Newsletter](ctx, database.Newsletters, filter,
		bson.D{{Key: "subscribedAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, subs, NewPagination(page, limit, total))
}

// GET /api/newsletter/stats
func NewsletterStats(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	counts, err := statusCounts(ctx, database.Newsletters, bson.M{})
	if err != nil {
		fail(c, err)
		return
	}
	verified, err := database.Newsletters.CountDocuments(ctx, bson.M{"isVerified": true, "status": models.SubscriberActive})
	if err != nil {
		fail(c, err)
		return
	}
	recent, err := database.Newsletters.CountDocuments(ctx, bson.M{"subscribedAt": bson.M{"$gte": time.Now().AddDate(0, 0, -30)}})
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"total":        counts[models.SubscriberActive] + counts[models.SubscriberUnsubscribed],
		"active":       counts[models.SubscriberActive],
		"unsubscribed": counts[models.SubscriberUnsubscribed],
		"verified":     verified,
		"last30Days":   recent,
		"sending":      newsletterRunning.Load(),
	})
}

// DELETE /api/newsletter/subscribers/:id
func DeleteSubscriber(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Newsletters.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, apperror.NotFound("Subscriber not found"))
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/newsletter/send
func SendNewsletter(c *gin.Context) {
	var req struct {
		Subject  string `json:"subject" binding:"required,max=200"`
		Markdown string `json:"markdown" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	contentHTML, err := markdown.ToHTML(req.Markdown)
	if err != nil {
		fail(c, apperror.BadRequest("Newsletter content could not be rendered"))
		return
	}
	contentText := models.StripHTML(contentHTML)

	started := runNewsletter("campaign", func(ctx context.Context) (email.Report, error) {
		return newsletter().SendCampaign(ctx, req.Subject, contentHTML, contentText)
	})
	if !started {
		fail(c, apperror.Conflict("A newsletter is already being sent"))
		return
	}
	respond(c, http.StatusAccepted, gin.H{"queued": true, "subject": req.Subject})
}

// POST /api/newsletter/send-weekly
func SendWeeklyNewsletter(c *gin.Context) {
	if !runNewsletter("weekly", newsletter().RunWeekly) {
		fail(c, apperror.Conflict("A newsletter is already being sent"))
		return
	}
	respond(c, http.StatusAccepted, gin.H{"queued": true})
}
