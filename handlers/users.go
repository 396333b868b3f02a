package handlers

import (
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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GET /api/users
func ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if role := c.Query("role"); role != "" {
		if !models.ValidRole(role) {
			fail(c, apperror.BadRequest("Invalid role"))
			return
		}
		filter["role"] = role
	}
	if active, ok := queryBool(c, "active"); ok {
		filter["isActive"] = active
	}
	if search := c.Query("search"); search != "" {
		re := searchRegex(search)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"email": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	users, total, err := findPage[models.User](ctx, database.Users, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, users, NewPagination(page, limit, total))
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	Role     string `json:"role" binding:"omitempty,oneof=admin reader contributor"`
	Bio      string `json:"bio" binding:"max=500"`
	Premium  bool   `json:"isPremium"`
}

// POST /api/users
func CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	user, err := models.NewUser(req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		fail(c, apperror.Internal("Failed to hash password", err))
		return
	}
	user.Bio = strings.TrimSpace(req.Bio)
	user.IsPremium = req.Premium
	user.IsEmailVerified = true

	ctx, cancel := dbContext(c)
	defer cancel()

	// Duplicate emails surface as a duplicate key error, which maps to 400.
	if _, err := database.Users.InsertOne(ctx, user); err != nil {
		fail(c, err)
		return
	}

	logger.Handler("CreateUser").WithField("user", user.ID.Hex()).WithField("role", user.Role).Info("User created by admin")
	respond(c, http.StatusCreated, user)
}

// GET /api/users/:id
func GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := userByID(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if !user.IsActive && !isAdmin(c) {
		fail(c, apperror.NotFound("User not found"))
		return
	}
	if isAdmin(c) {
		respond(c, http.StatusOK, user)
		return
	}
	respond(c, http.StatusOK, user.Public())
}

type updateUserRequest struct {
	Name        *string             `json:"name" binding:"omitempty,min=2,max=50"`
	Email       *string             `json:"email" binding:"omitempty,email"`
	Password    *string             `json:"password" binding:"omitempty,min=6,max=128"`
	Role        *string             `json:"role" binding:"omitempty,oneof=admin reader contributor"`
	Bio         *string             `json:"bio" binding:"omitempty,max=500"`
	Avatar      *string             `json:"avatar" binding:"omitempty,url"`
	SocialLinks *models.SocialLinks `json:"socialLinks"`
	IsPremium   *bool               `json:"isPremium"`
	IsActive    *bool               `json:"isActive"`
}

// PUT /api/users/:id
func UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := userByID(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if req.Name != nil {
		set["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		set["email"] = models.NormalizeEmail(*req.Email)
	}
	if req.Role != nil {
		set["role"] = *req.Role
	}
	if req.Bio != nil {
		set["bio"] = strings.TrimSpace(*req.Bio)
	}
	if req.Avatar != nil {
		set["avatar"] = *req.Avatar
	}
	if req.SocialLinks != nil {
		set["socialLinks"] = req.SocialLinks
	}
	if req.IsPremium != nil {
		set["isPremium"] = *req.IsPremium
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			fail(c, apperror.Internal("Failed to hash password", err))
			return
		}
		set["password"] = user.Password
		set["passwordChangedAt"] = user.PasswordChangedAt
	}

	var updated models.User
	err = database.Users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, &updated)
}

// DELETE /api/users/:id
func DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if me, _ := currentUserID(c); me == id {
		fail(c, apperror.BadRequest("You cannot delete your own account"))
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if res.DeletedCount == 0 {
		fail(c, apperror.NotFound("User not found"))
		return
	}

	_, err = database.Users.UpdateMany(ctx,
		bson.M{"$or": bson.A{bson.M{"followers": id}, bson.M{"following": id}}},
		bson.M{"$pull": bson.M{"followers": id, "following": id}},
	)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := database.PushSubs.DeleteMany(ctx, bson.M{"user": id}); err != nil {
		logger.Handler("DeleteUser").WithError(err).Warn("Failed to remove push subscriptions")
	}

	logger.Handler("DeleteUser").WithField("user", id.Hex()).Info("User deleted")
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/users/me/avatar
func UploadAvatar(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	res, ok := uploadFormImage(c, "avatar", "avatars", userID.Hex())
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var user models.User
	err := database.Users.FindOneAndUpdate(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"avatar": res.URL, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if destroyErr := media.Default().Destroy(ctx, res.PublicID); destroyErr != nil {
			logger.Handler("UploadAvatar").WithError(destroyErr).Warn("Failed to remove orphaned avatar")
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"avatar": user.Avatar})
}
