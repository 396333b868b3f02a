package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/media"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// uploadFormImage streams the multipart file in field to the configured
// uploader.
func uploadFormImage(c *gin.Context, field, folder, publicID string) (*media.Result, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize)
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		fail(c, apperror.BadRequest("No "+field+" file provided"))
		return nil, false
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); !allowedImageTypes[ct] {
		fail(c, apperror.BadRequest("Only JPEG, PNG, WebP and GIF images are allowed"))
		return nil, false
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := media.Default().Upload(ctx, file, folder, publicID)
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			err = apperror.Wrap(http.StatusBadGateway, "Image upload failed", err)
		}
		fail(c, err)
		return nil, false
	}
	return res, true
}

// POST /api/upload/image
func UploadImage(c *gin.Context) {
	res, ok := uploadFormImage(c, "image", c.PostForm("folder"), "")
	if !ok {
		return
	}
	respond(c, http.StatusCreated, res)
}

// GET /api/photos
func ListPhotos(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{"isPublished": true}
	if v := c.Query("destination"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fail(c, apperror.BadRequest("Invalid destination id"))
			return
		}
		filter["destination"] = id
	}
	if v := c.Query("tag"); v != "" {
		filter["tags"] = strings.ToLower(v)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	photos, total, err := findPage[models.Photo](ctx, database.Photos, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, photos, NewPagination(page, limit, total))
}

// GET /api/photos/:id
func GetPhoto(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	filter := bson.M{"_id": id}
	if !isAdmin(c) {
		filter["isPublished"] = true
	}
	var photo models.Photo
	if err := database.Photos.FindOne(ctx, filter).Decode(&photo); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = apperror.NotFound("Photo not found")
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, photo)
}

type photoForm struct {
	Title       string `form:"title" binding:"required,max=200"`
	Caption     string `form:"caption" binding:"max=1000"`
	Destination string `form:"destination" binding:"omitempty,objectid"`
	Location    string `form:"location" binding:"max=200"`
	Tags        string `form:"tags"`
	IsPublished *bool  `form:"isPublished"`
}

// POST /api/photos
func CreatePhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize)
	var form photoForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	res, ok := uploadFormImage(c, "image", "photos", "")
	if !ok {
		return
	}

	now := time.Now()
	photo := models.Photo{
		ID:          primitive.NewObjectID(),
		Title:       strings.TrimSpace(form.Title),
		Caption:     strings.TrimSpace(form.Caption),
		URL:         res.URL,
		PublicID:    res.PublicID,
		Location:    strings.TrimSpace(form.Location),
		Tags:        cleanTags(splitList(form.Tags)),
		UploadedBy:  userID,
		IsPublished: form.IsPublished == nil || *form.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if form.Destination != "" {
		dest, _ := primitive.ObjectIDFromHex(form.Destination)
		photo.Destination = &dest
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.Photos.InsertOne(ctx, photo); err != nil {
		if destroyErr := media.Default().Destroy(ctx, res.PublicID); destroyErr != nil {
			logger.Handler("CreatePhoto").WithError(destroyErr).Warn("Failed to remove orphaned image")
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, photo)
}

type updatePhotoRequest struct {
	Title       *string  `json:"title" binding:"omitempty,min=1,max=200"`
	Caption     *string  `json:"caption" binding:"omitempty,max=1000"`
	Destination *string  `json:"destination" binding:"omitempty,objectid"`
	Location    *string  `json:"location" binding:"omitempty,max=200"`
	Tags        []string `json:"tags" binding:"omitempty,max=20,dive,max=40"`
	IsPublished *bool    `json:"isPublished"`
}

// PUT /api/photos/:id
func UpdatePhoto(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if req.Title != nil {
		set["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Caption != nil {
		set["caption"] = strings.TrimSpace(*req.Caption)
	}
	if req.Destination != nil {
		dest, _ := primitive.ObjectIDFromHex(*req.Destination)
		set["destination"] = dest
	}
	if req.Location != nil {
		set["location"] = strings.TrimSpace(*req.Location)
	}
	if req.Tags != nil {
		set["tags"] = cleanTags(req.Tags)
	}
	if req.IsPublished != nil {
		set["isPublished"] = *req.IsPublished
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var photo models.Photo
	err := database.Photos.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&photo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("Photo not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, photo)
}

// DELETE /api/photos/:id
func DeletePhoto(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var photo models.Photo
	err := database.Photos.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&photo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("Photo not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	log := logger.Handler("DeletePhoto").WithField("photo", id.Hex())
	if err := media.Default().Destroy(ctx, photo.PublicID); err != nil {
		log.WithError(err).Warn("Failed to destroy image asset")
	}
	if _, err := database.Comments.DeleteMany(ctx, bson.M{"resourceType": models.ResourcePhoto, "resourceId": id.Hex()}); err != nil {
		log.WithError(err).Warn("Failed to delete photo comments")
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}
