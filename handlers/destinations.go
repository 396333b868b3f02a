package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultNearbyRadius = 100.0
	maxNearbyResults    = 50
)

var errDestinationNotFound = apperror.NotFound("Destination not found")

type destinationRequest struct {
	Name             string             `json:"name" binding:"required,min=2,max=120"`
	Slug             string             `json:"slug" binding:"omitempty,slug"`
	Country          string             `json:"country" binding:"required,max=80"`
	Region           string             `json:"region" binding:"max=80"`
	Description      string             `json:"description" binding:"required"`
	ShortDescription string             `json:"shortDescription" binding:"max=300"`
	FeaturedImage    string             `json:"featuredImage" binding:"omitempty,url"`
	Gallery          []string           `json:"gallery" binding:"omitempty,dive,url"`
	Coordinates      models.Coordinates `json:"coordinates"`
	BestTimeToVisit  string             `json:"bestTimeToVisit" binding:"max=200"`
	Activities       []models.Activity  `json:"activities"`
	Cuisine          []models.Dish      `json:"cuisine"`
	Tips             []string           `json:"tips"`
	Highlights       []string           `json:"highlights"`
	IsPublished      bool               `json:"isPublished"`
	IsFeatured       bool               `json:"isFeatured"`
}

func (r *destinationRequest) apply(d *models.Destination) {
	d.Name = strings.TrimSpace(r.Name)
	d.Slug = r.Slug
	d.Country = strings.TrimSpace(r.Country)
	d.Region = strings.TrimSpace(r.Region)
	d.Description = r.Description
	d.ShortDescription = strings.TrimSpace(r.ShortDescription)
	d.FeaturedImage = r.FeaturedImage
	d.Gallery = r.Gallery
	d.Coordinates = r.Coordinates
	d.BestTimeToVisit = r.BestTimeToVisit
	d.Activities = r.Activities
	d.Cuisine = r.Cuisine
	d.Tips = r.Tips
	d.Highlights = r.Highlights
	d.IsPublished = r.IsPublished
	d.IsFeatured = r.IsFeatured
	d.Prepare()
}

// GET /api/destinations
func ListDestinations(c *gin.Context) {
	listDestinations(c, bson.M{"isPublished": true})
}

// GET /api/destinations/admin/all
func AdminListDestinations(c *gin.Context) {
	filter := bson.M{}
	if published, ok := queryBool(c, "published"); ok {
		filter["isPublished"] = published
	}
	listDestinations(c, filter)
}

func listDestinations(c *gin.Context, filter bson.M) {
	page, limit := pageParams(c)
	if v := c.Query("country"); v != "" {
		filter["country"] = bson.M{"$regex": "^" + regexp.QuoteMeta(strings.TrimSpace(v)) + "$", "$options": "i"}
	}
	if featured, ok := queryBool(c, "featured"); ok {
		filter["isFeatured"] = featured
	}
	if v := c.Query("search"); v != "" {
		re := searchRegex(v)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"country": re}, bson.M{"region": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	items, total, err := findPage[models.Destination](ctx, database.Destinations, filter,
		bson.D{{Key: "isFeatured", Value: -1}, {Key: "name", Value: 1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, items, NewPagination(page, limit, total))
}

type nearbyDestination struct {
	models.Destination
	Distance float64 `json:"distance"`
}

// GET /api/destinations/nearby?lat=&lng=&radius=
func NearbyDestinations(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		fail(c, apperror.BadRequest("lat and lng must be valid coordinates"))
		return
	}
	radius := defaultNearbyRadius
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			fail(c, apperror.BadRequest("radius must be a positive number of kilometres"))
			return
		}
		radius = r
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	cursor, err := database.Destinations.Find(ctx, bson.M{"isPublished": true})
	if err != nil {
		fail(c, err)
		return
	}
	var all []models.Destination
	if err := cursor.All(ctx, &all); err != nil {
		fail(c, err)
		return
	}

	origin := models.Coordinates{Lat: lat, Lng: lng}
	nearby := []nearbyDestination{}
	for _, d := range all {
		if d.Coordinates.IsZero() {
			continue
		}
		dist := origin.DistanceTo(d.Coordinates)
		if dist <= radius {
			nearby = append(nearby, nearbyDestination{Destination: d, Distance: float64(int(dist*10)) / 10})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].Distance < nearby[j].Distance })
	if len(nearby) > maxNearbyResults {
		nearby = nearby[:maxNearbyResults]
	}

	logger.Handler("NearbyDestinations").Debugf("Found %d destinations within %.0f km", len(nearby), radius)
	respond(c, http.StatusOK, nearby)
}

// GET /api/destinations/:id
func GetDestination(c *gin.Context) {
	filter := idOrSlug(c.Param("id"))
	if !isAdmin(c) {
		filter["isPublished"] = true
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var dest models.Destination
	err := database.Destinations.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, errDestinationNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, dest)
}

// POST /api/destinations
func CreateDestination(c *gin.Context) {
	var req destinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	now := time.Now()
	dest := models.Destination{ID: primitive.NewObjectID(), CreatedBy: userID, CreatedAt: now, UpdatedAt: now}
	req.apply(&dest)

	ctx, cancel := dbContext(c)
	defer cancel()

	slug, err := uniqueSlug(ctx, database.Destinations, dest.Slug, primitive.NilObjectID)
	if err != nil {
		fail(c, err)
		return
	}
	dest.Slug = slug

	if _, err := database.Destinations.InsertOne(ctx, dest); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, dest)
}

// PUT /api/destinations/:id
func UpdateDestination(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req destinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var dest models.Destination
	if err := database.Destinations.FindOne(ctx, bson.M{"_id": id}).Decode(&dest); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errDestinationNotFound
		}
		fail(c, err)
		return
	}

	if req.Slug == "" {
		req.Slug = dest.Slug
	}
	req.apply(&dest)
	slug, err := uniqueSlug(ctx, database.Destinations, dest.Slug, id)
	if err != nil {
		fail(c, err)
		return
	}
	dest.Slug = slug
	dest.UpdatedAt = time.Now()

	if _, err := database.Destinations.ReplaceOne(ctx, bson.M{"_id": id}, dest); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, dest)
}

// PATCH /api/destinations/:id/publish
func PublishDestination(c *gin.Context) {
	setPublished(c, database.Destinations, errDestinationNotFound)
}

// DELETE /api/destinations/:id
func DeleteDestination(c *gin.Context) {
	deleteResource(c, database.Destinations, models.ResourceDestination, errDestinationNotFound)
}

// setPublished toggles isPublished on a document in coll.
func setPublished(c *gin.Context, coll *mongo.Collection, notFound error) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		IsPublished *bool `json:"isPublished" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"isPublished": *req.IsPublished, "updatedAt": time.Now()}})
	if err != nil {
		fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		fail(c, notFound)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "isPublished": *req.IsPublished})
}

// deleteResource removes a commentable document and the comments on it.
func deleteResource(c *gin.Context, coll *mongo.Collection, resourceType string, notFound error) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, notFound)
		return
	}
	comments, err := database.Comments.DeleteMany(ctx, bson.M{"resourceType": resourceType, "resourceId": id.Hex()})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true, "comments": comments.DeletedCount})
}
