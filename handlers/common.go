package handlers

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/middleware"
	"wayfarer/models"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	dbTimeout    = 10 * time.Second
	defaultLimit = 10
	maxLimit     = 100
)

var hub *websocket.Hub

// SetHub installs the admin event hub. Broadcasts are dropped while it is nil.
func SetHub(h *websocket.Hub) {
	hub = h
}

// fail records err for middleware.ErrorHandler and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondList(c *gin.Context, data interface{}, p Pagination) {
	c.JSON(200, gin.H{"success": true, "data": data, "pagination": p})
}

func dbContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), dbTimeout)
}

type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// pageParams reads ?page and ?limit, clamping them to sane bounds.
func pageParams(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func skip(page, limit int) int64 {
	return int64((page - 1) * limit)
}

// findPage runs the page query and the count concurrently.
func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, page, limit int, projection bson.M) ([]T, int64, error) {
	type countResult struct {
		n   int64
		err error
	}
	counted := make(chan countResult, 1)
	go func() {
		n, err := coll.CountDocuments(ctx, filter)
		counted <- countResult{n, err}
	}()

	opts := options.Find().SetSort(sort).SetSkip(skip(page, limit)).SetLimit(int64(limit))
	if projection != nil {
		opts.SetProjection(projection)
	}

	items := []T{}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		<-counted
		return nil, 0, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &items); err != nil {
		<-counted
		return nil, 0, err
	}

	res := <-counted
	if res.err != nil {
		return nil, 0, res.err
	}
	return items, res.n, nil
}

// aggregatePage is findPage for pipelines that need $lookup stages after
// paging.
func aggregatePage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, page, limit int, stages ...bson.D) ([]T, int64, error) {
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: sort}},
		{{Key: "$skip", Value: skip(page, limit)}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	pipeline = append(pipeline, stages...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// statusCounts groups a collection by status.
func statusCounts(ctx context.Context, coll *mongo.Collection, match bson.M) (map[string]int64, error) {
	cursor, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func paramID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		fail(c, apperror.BadRequest("Invalid id"))
		return primitive.NilObjectID, false
	}
	return id, true
}

// idOrSlug matches a document by ObjectID when the value is one, else by slug.
func idOrSlug(value string) bson.M {
	if id, err := primitive.ObjectIDFromHex(value); err == nil {
		return bson.M{"_id": id}
	}
	return bson.M{"slug": strings.ToLower(value)}
}

func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middleware.ContextUserID))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// requireUser is currentUserID for routes behind Protect.
func requireUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, ok := currentUserID(c)
	if !ok {
		fail(c, apperror.Unauthorized("Not authorized"))
	}
	return id, ok
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.ContextRole) == models.RoleAdmin
}

func searchRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(strings.TrimSpace(s)), "$options": "i"}
}

// uniqueSlug returns base, or base with a numeric suffix, that no other
// document in coll uses.
func uniqueSlug(ctx context.Context, coll *mongo.Collection, base string, exclude primitive.ObjectID) (string, error) {
	if base == "" {
		base = "untitled"
	}
	slug := base
	for i := 2; ; i++ {
		filter := bson.M{"slug": slug}
		if !exclude.IsZero() {
			filter["_id"] = bson.M{"$ne": exclude}
		}
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

func queryBool(c *gin.Context, key string) (bool, bool) {
	v := c.Query(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func broadcast(eventType string, payload interface{}) {
	hub.Broadcast(eventType, payload)
}
