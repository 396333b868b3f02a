package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errCategoryNotFound = apperror.NotFound("Category not found")

type categoryRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=60"`
	Slug        string `json:"slug" binding:"omitempty,slug"`
	Description string `json:"description" binding:"max=300"`
	Color       string `json:"color" binding:"omitempty,hexcolor"`
}

type categoryWithCount struct {
	models.Category `bson:",inline"`
	PostCount       int64 `bson:"postCount" json:"postCount"`
}

// GET /api/categories
func ListCategories(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	cursor, err := database.Categories.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "name", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.Posts.Name()},
			{Key: "let", Value: bson.D{{Key: "cid", Value: "$_id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{
					{Key: "status", Value: models.PostPublished},
					{Key: "$expr", Value: bson.D{{Key: "$in", Value: bson.A{"$$cid", bson.D{{Key: "$ifNull", Value: bson.A{"$categories", bson.A{}}}}}}}},
				}}},
				bson.D{{Key: "$count", Value: "n"}},
			}},
			{Key: "as", Value: "posts"},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "postCount", Value: bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$arrayElemAt", Value: bson.A{"$posts.n", 0}}}, 0,
		}}}}}}},
		{{Key: "$project", Value: bson.D{{Key: "posts", Value: 0}}}},
	})
	if err != nil {
		fail(c, err)
		return
	}
	defer cursor.Close(ctx)

	categories := []categoryWithCount{}
	if err := cursor.All(ctx, &categories); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, categories)
}

// GET /api/categories/:id
func GetCategory(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	var cat models.Category
	if err := database.Categories.FindOne(ctx, idOrSlug(c.Param("id"))).Decode(&cat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errCategoryNotFound
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cat)
}

// POST /api/categories
func CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	now := time.Now()
	cat := models.Category{
		ID:          primitive.NewObjectID(),
		Name:        strings.TrimSpace(req.Name),
		Slug:        req.Slug,
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cat.Slug == "" {
		cat.Slug = models.Slugify(cat.Name)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.Categories.InsertOne(ctx, cat); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, cat)
}

// PUT /api/categories/:id
func UpdateCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	set := bson.M{
		"name":        strings.TrimSpace(req.Name),
		"description": strings.TrimSpace(req.Description),
		"color":       req.Color,
		"updatedAt":   time.Now(),
	}
	if req.Slug != "" {
		set["slug"] = req.Slug
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var cat models.Category
	err := database.Categories.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&cat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, errCategoryNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cat)
}

// DELETE /api/categories/:id
func DeleteCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Categories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, errCategoryNotFound)
		return
	}
	updated, err := database.Posts.UpdateMany(ctx, bson.M{"categories": id}, bson.M{"$pull": bson.M{"categories": id}})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true, "postsUpdated": updated.ModifiedCount})
}
