package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/markdown"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errGuideNotFound = apperror.NotFound("Guide not found")

type guideRequest struct {
	Title         string                `json:"title" binding:"required,min=3,max=200"`
	Slug          string                `json:"slug" binding:"omitempty,slug"`
	Destination   string                `json:"destination" binding:"omitempty,objectid"`
	Summary       string                `json:"summary" binding:"max=500"`
	Content       string                `json:"content" binding:"required"`
	Sections      []models.GuideSection `json:"sections"`
	Tips          []string              `json:"tips"`
	Difficulty    string                `json:"difficulty" binding:"omitempty,oneof=easy moderate challenging"`
	Duration      string                `json:"duration" binding:"max=80"`
	Budget        string                `json:"budget" binding:"max=80"`
	FeaturedImage string                `json:"featuredImage" binding:"omitempty,url"`
	Gallery       []string              `json:"gallery" binding:"omitempty,dive,url"`
	Tags          []string              `json:"tags" binding:"omitempty,max=20,dive,max=40"`
	IsPublished   bool                  `json:"isPublished"`
}

// apply copies the request onto g and renders the Markdown body.
func (r *guideRequest) apply(g *models.Guide) error {
	html, err := markdown.ToHTML(r.Content)
	if err != nil {
		return apperror.BadRequest("Guide content could not be rendered")
	}
	g.Title = strings.TrimSpace(r.Title)
	g.Slug = r.Slug
	g.Destination = nil
	if r.Destination != "" {
		dest, _ := primitive.ObjectIDFromHex(r.Destination)
		g.Destination = &dest
	}
	g.Summary = strings.TrimSpace(r.Summary)
	g.Content = r.Content
	g.ContentHTML = html
	g.Sections = r.Sections
	g.Tips = r.Tips
	g.Difficulty = r.Difficulty
	g.Duration = r.Duration
	g.Budget = r.Budget
	g.FeaturedImage = r.FeaturedImage
	g.Gallery = r.Gallery
	g.Tags = cleanTags(r.Tags)
	g.IsPublished = r.IsPublished
	g.Prepare()
	return nil
}

// GET /api/guides
func ListGuides(c *gin.Context) {
	listGuides(c, bson.M{"isPublished": true})
}

// GET /api/guides/admin/all
func AdminListGuides(c *gin.Context) {
	filter := bson.M{}
	if published, ok := queryBool(c, "published"); ok {
		filter["isPublished"] = published
	}
	listGuides(c, filter)
}

func listGuides(c *gin.Context, filter bson.M) {
	page, limit := pageParams(c)
	if v := c.Query("destination"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fail(c, apperror.BadRequest("Invalid destination id"))
			return
		}
		filter["destination"] = id
	}
	if v := c.Query("difficulty"); v != "" {
		if !models.ValidDifficulty(v) {
			fail(c, apperror.BadRequest("difficulty must be one of easy, moderate, challenging"))
			return
		}
		filter["difficulty"] = v
	}
	if v := c.Query("tag"); v != "" {
		filter["tags"] = strings.ToLower(v)
	}
	if v := c.Query("search"); v != "" {
		re := searchRegex(v)
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"summary": re}, bson.M{"tags": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	guides, total, err := findPage[models.Guide](ctx, database.Guides, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, bson.M{"content": 0, "contentHtml": 0})
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, guides, NewPagination(page, limit, total))
}

// GET /api/guides/:id
func GetGuide(c *gin.Context) {
	filter := idOrSlug(c.Param("id"))
	if !isAdmin(c) {
		filter["isPublished"] = true
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var guide models.Guide
	err := database.Guides.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&guide)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, errGuideNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, guide)
}

// POST /api/guides
func CreateGuide(c *gin.Context) {
	var req guideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	now := time.Now()
	guide := models.Guide{ID: primitive.NewObjectID(), Author: userID, CreatedAt: now, UpdatedAt: now}
	if err := req.apply(&guide); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	slug, err := uniqueSlug(ctx, database.Guides, guide.Slug, primitive.NilObjectID)
	if err != nil {
		fail(c, err)
		return
	}
	guide.Slug = slug

	if _, err := database.Guides.InsertOne(ctx, guide); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, guide)
}

// PUT /api/guides/:id
func UpdateGuide(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req guideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var guide models.Guide
	if err := database.Guides.FindOne(ctx, bson.M{"_id": id}).Decode(&guide); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errGuideNotFound
		}
		fail(c, err)
		return
	}

	if req.Slug == "" {
		req.Slug = guide.Slug
	}
	if err := req.apply(&guide); err != nil {
		fail(c, err)
		return
	}
	slug, err := uniqueSlug(ctx, database.Guides, guide.Slug, id)
	if err != nil {
		fail(c, err)
		return
	}
	guide.Slug = slug
	guide.UpdatedAt = time.Now()

	if _, err := database.Guides.ReplaceOne(ctx, bson.M{"_id": id}, guide); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, guide)
}

// PATCH /api/guides/:id/publish
func PublishGuide(c *gin.Context) {
	setPublished(c, database.Guides, errGuideNotFound)
}

// DELETE /api/guides/:id
func DeleteGuide(c *gin.Context) {
	deleteResource(c, database.Guides, models.ResourceGuide, errGuideNotFound)
}
