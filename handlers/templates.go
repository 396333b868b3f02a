package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errTemplateNotFound = apperror.NotFound("Email template not found")

type templateRequest struct {
	Key         string   `json:"key" binding:"required,slug,max=60"`
	Name        string   `json:"name" binding:"required,max=120"`
	Description string   `json:"description" binding:"max=500"`
	Subject     string   `json:"subject" binding:"required,max=300"`
	HTML        string   `json:"html" binding:"required"`
	Text        string   `json:"text"`
	Variables   []string `json:"variables" binding:"omitempty,dive,min=1,max=60"`
	IsActive    *bool    `json:"isActive"`
}

func loadTemplate(c *gin.Context) (*models.EmailTemplate, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var t models.EmailTemplate
	if err := database.EmailTemplates.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errTemplateNotFound
		}
		fail(c, err)
		return nil, false
	}
	return &t, true
}

// GET /api/email-templates
func ListTemplates(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	cursor, err := database.EmailTemplates.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		fail(c, err)
		return
	}
	templates := []models.EmailTemplate{}
	if err := cursor.All(ctx, &templates); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"templates": templates, "builtin": email.BuiltinKeys()})
}

// GET /api/email-templates/:id
func GetTemplate(c *gin.Context) {
	t, ok := loadTemplate(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, t)
}

// POST /api/email-templates
func CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	now := time.Now()
	t := models.EmailTemplate{
		ID:          primitive.NewObjectID(),
		Key:         req.Key,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Subject:     req.Subject,
		HTML:        req.HTML,
		Text:        req.Text,
		Variables:   req.Variables,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Variables == nil {
		t.Variables = []string{}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.EmailTemplates.InsertOne(ctx, t); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, t)
}

// PUT /api/email-templates/:id
func UpdateTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	set := bson.M{
		"key":         req.Key,
		"name":        strings.TrimSpace(req.Name),
		"description": strings.TrimSpace(req.Description),
		"subject":     req.Subject,
		"html":        req.HTML,
		"text":        req.Text,
		"updatedAt":   time.Now(),
	}
	if req.Variables != nil {
		set["variables"] = req.Variables
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var t models.EmailTemplate
	err := database.EmailTemplates.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, errTemplateNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

// DELETE /api/email-templates/:id
func DeleteTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.EmailTemplates.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, errTemplateNotFound)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/email-templates/:id/preview
func PreviewTemplate(c *gin.Context) {
	var req struct {
		Data map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	t, ok := loadTemplate(c)
	if !ok {
		return
	}

	rendered := email.Default().Preview(t, req.Data)
	respond(c, http.StatusOK, gin.H{
		"subject": rendered.Subject,
		"html":    rendered.HTML,
		"text":    rendered.Text,
		"missing": t.MissingVariables(req.Data),
	})
}

// POST /api/email-templates/:id/test
func TestTemplate(c *gin.Context) {
	var req struct {
		To   string         `json:"to" binding:"required,email"`
		Data map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	t, ok := loadTemplate(c)
	if !ok {
		return
	}

	svc := email.Default()
	rendered := svc.Preview(t, req.Data)

	ctx, cancel := dbContext(c)
	defer cancel()

	err := svc.Send(ctx, email.Message{To: req.To, Subject: "[Test] " + rendered.Subject, HTML: rendered.HTML, Text: rendered.Text})
	if err != nil {
		fail(c, apperror.Wrap(http.StatusBadGateway, "Failed to send test email", err))
		return
	}
	respond(c, http.StatusOK, gin.H{"sent": true, "to": req.To})
}
