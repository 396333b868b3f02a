package handlers

import (
	"context"
	"net/http"
	"time"

	"wayfarer/database"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var startedAt = time.Now()

// GET /health
func Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	if err := database.Ping(ctx); err != nil {
		dbStatus = "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(startedAt).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  dbStatus,
	})
}

// GET /api/public/stats
func PublicStats(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	queries := []struct {
		key    string
		coll   *mongo.Collection
		filter bson.M
	}{
		{"posts", database.Posts, bson.M{"status": models.PostPublished}},
		{"destinations", database.Destinations, bson.M{"isPublished": true}},
		{"guides", database.Guides, bson.M{"isPublished": true}},
		{"photos", database.Photos, bson.M{"isPublished": true}},
		{"comments", database.Comments, bson.M{"status": models.CommentApproved}},
		{"subscribers", database.Newsletters, bson.M{"status": models.SubscriberActive}},
		{"users", database.Users, bson.M{"isActive": true}},
	}

	stats := make(gin.H, len(queries))
	for _, q := range queries {
		n, err := q.coll.CountDocuments(ctx, q.filter)
		if err != nil {
			fail(c, err)
			return
		}
		stats[q.key] = n
	}
	respond(c, http.StatusOK, stats)
}
