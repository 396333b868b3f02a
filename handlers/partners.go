package handlers

import (
	"errors"
	"fmt"
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

var errPartnerNotFound = apperror.NotFound("Partner application not found")

type partnerRequest struct {
	Name            string `json:"name" binding:"required,min=2,max=80"`
	Company         string `json:"company" binding:"required,max=120"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"omitempty,max=30"`
	Website         string `json:"website" binding:"omitempty,url"`
	PartnershipType string `json:"partnershipType" binding:"required"`
	Message         string `json:"message" binding:"required,min=10,max=5000"`
}

// POST /api/partners
func ApplyPartner(c *gin.Context) {
	var req partnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if !models.ValidPartnershipType(req.PartnershipType) {
		fail(c, apperror.BadRequest("partnershipType must be one of hotel, tour, brand, affiliate, other"))
		return
	}

	now := time.Now()
	partner := models.Partner{
		ID:              primitive.NewObjectID(),
		Name:            strings.TrimSpace(req.Name),
		Company:         strings.TrimSpace(req.Company),
		Email:           models.NormalizeEmail(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		Website:         req.Website,
		PartnershipType: req.PartnershipType,
		Message:         strings.TrimSpace(req.Message),
		Status:          models.PartnerPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.Partners.InsertOne(ctx, partner); err != nil {
		fail(c, err)
		return
	}

	if admin := config.Get().AdminEmail; admin != "" {
		email.Default().SendTemplateAsync(email.TemplateContactNotification, admin, map[string]any{
			"name":    partner.Name,
			"email":   partner.Email,
			"subject": fmt.Sprintf("Partnership application (%s) from %s", partner.PartnershipType, partner.Company),
			"message": partner.Message,
		})
	}
	broadcast(websocket.EventPartnerApplied, gin.H{"id": partner.ID, "company": partner.Company, "type": partner.PartnershipType})
	notifyAdmins("New partner application", partner.Company, "/admin/partners")

	logger.Handler("ApplyPartner").WithField("partner", partner.ID.Hex()).Info("Partner application received")
	respond(c, http.StatusCreated, gin.H{"id": partner.ID, "status": partner.Status})
}

// GET /api/partners
func ListPartners(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		if !models.ValidPartnerStatus(status) {
			fail(c, apperror.BadRequest("Invalid status"))
			return
		}
		filter["status"] = status
	}
	if t := c.Query("type"); t != "" {
		filter["partnershipType"] = t
	}
	if search := c.Query("search"); search != "" {
		re := searchRegex(search)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"company": re}, bson.M{"email": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	partners, total, err := findPage[models.Partner](ctx, database.Partners, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, partners, NewPagination(page, limit, total))
}

// GET /api/partners/:id
func GetPartner(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var partner models.Partner
	if err := database.Partners.FindOne(ctx, bson.M{"_id": id}).Decode(&partner); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errPartnerNotFound
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, partner)
}

// PATCH /api/partners/:id
func UpdatePartner(c *gin.Context) {
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

	ctx, cancel := dbContext(c)
	defer cancel()

	var partner models.Partner
	if err := database.Partners.FindOne(ctx, bson.M{"_id": id}).Decode(&partner); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = errPartnerNotFound
		}
		fail(c, err)
		return
	}

	now := time.Now()
	set := bson.M{"updatedAt": now}
	decided := false
	if req.Status != nil && *req.Status != partner.Status {
		if !models.ValidPartnerStatus(*req.Status) {
			fail(c, apperror.BadRequest("Invalid status"))
			return
		}
		if !partner.CanTransition(*req.Status) {
			fail(c, apperror.BadRequest(fmt.Sprintf("Cannot move application from %s to %s", partner.Status, *req.Status)))
			return
		}
		set["status"] = *req.Status
		set["reviewedAt"] = now
		decided = models.IsPartnerDecision(*req.Status)
	}
	if req.AdminNotes != nil {
		set["adminNotes"] = strings.TrimSpace(*req.AdminNotes)
	}

	var updated models.Partner
	err := database.Partners.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		fail(c, err)
		return
	}

	if decided {
		email.Default().SendTemplateAsync(email.TemplatePartnerStatus, updated.Email, map[string]any{
			"name":    updated.Name,
			"company": updated.Company,
			"status":  updated.Status,
			"notes":   updated.AdminNotes,
		})
	}
	respond(c, http.StatusOK, updated)
}

// DELETE /api/partners/:id
func DeletePartner(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Partners.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, errPartnerNotFound)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}
