package handlers

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/logger"
	"wayfarer/models"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errContactNotFound = apperror.NotFound("Message not found")

type contactRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=80"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"omitempty,max=30"`
	Subject string `json:"subject" binding:"required,max=200"`
	Message string `json:"message" binding:"required,min=10,max=5000"`
}

// POST /api/contact
func SubmitContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	now := time.Now()
	contact := models.Contact{
		ID:        primitive.NewObjectID(),
		Name:      strings.TrimSpace(req.Name),
		Email:     models.NormalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Subject:   strings.TrimSpace(req.Subject),
		Message:   strings.TrimSpace(req.Message),
		Status:    models.ContactUnread,
		IPAddress: c.ClientIP(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.Contacts.InsertOne(ctx, contact); err != nil {
		fail(c, err)
		return
	}

	if admin := config.Get().AdminEmail; admin != "" {
		email.Default().SendTemplateAsync(email.TemplateContactNotification, admin, map[string]any{
			"name":    contact.Name,
			"email":   contact.Email,
			"subject": contact.Subject,
			"message": contact.Message,
		})
	}
	broadcast(websocket.EventContactReceived, gin.H{"id": contact.ID, "name": contact.Name, "subject": contact.Subject})
	notifyAdmins("New message from "+contact.Name, contact.Subject, "/admin/contacts")

	logger.Handler("SubmitContact").WithField("contact", contact.ID.Hex()).Info("Contact message received")
	respond(c, http.StatusCreated, gin.H{"id": contact.ID, "message": "Thanks for reaching out, we will get back to you soon"})
}

// GET /api/contact
func ListContacts(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		if !models.ValidContactStatus(status) {
			fail(c, apperror.BadRequest("Invalid status"))
			return
		}
		filter["status"] = status
	}
	if search := c.Query("search"); search != "" {
		re := searchRegex(search)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"email": re}, bson.M{"subject": re}, bson.M{"message": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	contacts, total, err := findPage[models.Contact](ctx, database.Contacts, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, contacts, NewPagination(page, limit, total))
}

// GET /api/contact/stats
func ContactStats(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	counts, err := statusCounts(ctx, database.Contacts, bson.M{})
	if err != nil {
		fail(c, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	respond(c, http.StatusOK, gin.H{"total": total, "byStatus": counts})
}

// GET /api/contact/:id marks unread messages as read.
func GetContact(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var contact models.Contact
	err := database.Contacts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ContactUnread},
		bson.M{"$set": bson.M{"status": models.ContactRead, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&contact)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = database.Contacts.FindOne(ctx, bson.M{"_id": id}).Decode(&contact)
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errContactNotFound
		}
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, contact)
}

func findContact(c *gin.Context, id primitive.ObjectID) (*models.Contact, bool) {
	ctx, cancel := dbContext(c)
	defer cancel()

	var contact models.Contact
	if err := database.Contacts.FindOne(ctx, bson.M{"_id": id}).Decode(&contact); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errContactNotFound
		}
		fail(c, err)
		return nil, false
	}
	return &contact, true
}

// PATCH /api/contact/:id
func UpdateContact(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status     *string `json:"status"`
		AdminNotes *string `json:"adminNotes" binding:"omitempty,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	contact, ok := findContact(c, id)
	if !ok {
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if req.Status != nil {
		if !models.ValidContactStatus(*req.Status) {
			fail(c, apperror.BadRequest("Invalid status"))
			return
		}
		if !contact.CanTransition(*req.Status) {
			fail(c, apperror.BadRequest(fmt.Sprintf("Cannot move message from %s to %s", contact.Status, *req.Status)))
			return
		}
		set["status"] = *req.Status
	}
	if req.AdminNotes != nil {
		set["adminNotes"] = strings.TrimSpace(*req.AdminNotes)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var updated models.Contact
	err := database.Contacts.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, updated)
}

// POST /api/contact/:id/reply
func ReplyContact(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	contact, ok := findContact(c, id)
	if !ok {
		return
	}
	if !contact.CanTransition(models.ContactReplied) {
		fail(c, apperror.BadRequest("Archived messages cannot be replied to"))
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	reply := strings.TrimSpace(req.Message)
	err := email.Default().SendTemplate(ctx, email.TemplateContactReply, contact.Email, map[string]any{
		"name":      contact.Name,
		"subject":   contact.Subject,
		"reply":     reply,
		"replyHtml": strings.ReplaceAll(html.EscapeString(reply), "\n", "<br>"),
		"message":   contact.Message,
	})
	if err != nil {
		fail(c, apperror.Wrap(http.StatusBadGateway, "Failed to send reply email", err))
		return
	}

	now := time.Now()
	var updated models.Contact
	err = database.Contacts.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": models.ContactReplied, "repliedAt": now, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, updated)
}

// DELETE /api/contact/:id
func DeleteContact(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Contacts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, errContactNotFound)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}
