package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type pushConfig struct {
	publicKey  string
	privateKey string
	subject    string
}

var vapid pushConfig

// SetPushKeys configures Web Push. Notifications are skipped while the
// private key is empty.
func SetPushKeys(publicKey, privateKey, subject string) {
	vapid = pushConfig{publicKey: publicKey, privateKey: privateKey, subject: subject}
}

// GET /api/push/vapid-public-key
func GetVapidPublicKey(c *gin.Context) {
	if vapid.publicKey == "" {
		fail(c, apperror.Unavailable("Push notifications are not configured"))
		return
	}
	respond(c, http.StatusOK, gin.H{"publicKey": vapid.publicKey})
}

type pushSubscribeRequest struct {
	Endpoint string          `json:"endpoint" binding:"required,url"`
	Keys     models.PushKeys `json:"keys" binding:"required"`
}

// POST /api/push/subscribe
func SubscribePush(c *gin.Context) {
	var req pushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	_, err := database.PushSubs.UpdateOne(ctx,
		bson.M{"endpoint": req.Endpoint},
		bson.M{
			"$set":         bson.M{"user": userID, "keys": req.Keys},
			"$setOnInsert": bson.M{"createdAt": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		fail(c, err)
		return
	}

	logger.Handler("SubscribePush").WithField("user", userID.Hex()).Info("Push subscription saved")
	respond(c, http.StatusCreated, gin.H{"endpoint": req.Endpoint})
}

// DELETE /api/push/subscribe
func UnsubscribePush(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.PushSubs.DeleteOne(ctx, bson.M{"endpoint": req.Endpoint, "user": userID})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, apperror.NotFound("Subscription not found"))
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Time  int64  `json:"timestamp"`
}

// notifyAdmins pushes a notification to every admin's subscribed browsers
// in the background. Expired subscriptions are removed.
func notifyAdmins(title, body, url string) {
	if vapid.privateKey == "" || database.PushSubs == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("Panic in push notification: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log := logger.Log.WithField("component", "push")

		adminIDs, err := database.Users.Distinct(ctx, "_id", bson.M{"role": models.RoleAdmin, "isActive": true})
		if err != nil {
			log.WithError(err).Error("Failed to load admins")
			return
		}
		if len(adminIDs) == 0 {
			return
		}

		cursor, err := database.PushSubs.Find(ctx, bson.M{"user": bson.M{"$in": adminIDs}})
		if err != nil {
			log.WithError(err).Error("Failed to load push subscriptions")
			return
		}
		var subs []models.PushSubscription
		if err := cursor.All(ctx, &subs); err != nil {
			log.WithError(err).Error("Failed to decode push subscriptions")
			return
		}

		payload, err := json.Marshal(pushPayload{Title: title, Body: models.Truncate(body, 120), URL: url, Time: time.Now().Unix()})
		if err != nil {
			return
		}

		for _, sub := range subs {
			resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
				Endpoint: sub.Endpoint,
				Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
			}, &webpush.Options{
				Subscriber:      vapid.subject,
				VAPIDPublicKey:  vapid.publicKey,
				VAPIDPrivateKey: vapid.privateKey,
				TTL:             60,
			})
			if err != nil {
				log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("Push send failed")
				continue
			}
			resp.Body.Close()

			if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
				if _, err := database.PushSubs.DeleteOne(ctx, bson.M{"_id": sub.ID}); err != nil {
					log.WithError(err).Warn("Failed to delete expired push subscription")
				}
			}
		}
	}()
}
