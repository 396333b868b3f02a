package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/logger"
	"wayfarer/middleware"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	resetTokenTTL  = 10 * time.Minute
	verifyTokenTTL = 24 * time.Hour
)

var errInvalidCredentials = apperror.Unauthorized("Invalid email or password")

// hashToken is what gets stored for emailed tokens; the raw value only
// leaves the server inside the link.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newEmailToken returns the raw token and its stored hash.
func newEmailToken() (string, string) {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw, hashToken(raw)
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func issueToken(c *gin.Context, status int, user *models.User) {
	token, err := middleware.GenerateToken(user.ID.Hex(), user.Role)
	if err != nil {
		fail(c, apperror.Internal("Failed to generate token", err))
		return
	}
	respond(c, status, authResponse{Token: token, User: user})
}

func findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := database.Users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func sendVerification(u *models.User, rawToken string) {
	email.Default().SendTemplateAsync(email.TemplateEmailVerification, u.Email, map[string]any{
		"name":      u.Name,
		"verifyUrl": config.Get().FrontendURL + "/verify-email/" + rawToken,
	})
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	Role     string `json:"role" binding:"omitempty,oneof=reader contributor"`
}

// POST /api/auth/register
func Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	settings, err := loadSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	if !settings.Features.Registration {
		fail(c, apperror.Forbidden("Registration is currently disabled"))
		return
	}

	n, err := database.Users.CountDocuments(ctx, bson.M{"email": models.NormalizeEmail(req.Email)})
	if err != nil {
		fail(c, err)
		return
	}
	if n > 0 {
		fail(c, apperror.BadRequest("Email already registered"))
		return
	}

	user, err := models.NewUser(req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		fail(c, apperror.Internal("Failed to hash password", err))
		return
	}
	rawToken, hashed := newEmailToken()
	expires := time.Now().Add(verifyTokenTTL)
	user.EmailVerificationToken = hashed
	user.EmailVerificationExpires = &expires

	// The unique index still catches a concurrent registration; the error
	// handler turns it into a 400.
	if _, err := database.Users.InsertOne(ctx, user); err != nil {
		fail(c, err)
		return
	}

	logger.Handler("Register").WithField("user", user.ID.Hex()).Info("User registered")
	email.Default().SendTemplateAsync(email.TemplateWelcome, user.Email, map[string]any{"name": user.Name})
	sendVerification(user, rawToken)

	issueToken(c, http.StatusCreated, user)
}

// POST /api/auth/login
func Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := findUser(ctx, bson.M{"email": models.NormalizeEmail(req.Email)})
	if err != nil {
		if _, notFound := apperror.As(err); notFound {
			err = errInvalidCredentials
		}
		fail(c, err)
		return
	}
	if !user.CheckPassword(req.Password) {
		fail(c, errInvalidCredentials)
		return
	}
	if !user.IsActive {
		fail(c, apperror.Forbidden("Account is deactivated"))
		return
	}

	now := time.Now()
	user.LastLogin = &now
	if _, err := database.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"lastLogin": now}}); err != nil {
		logger.Handler("Login").WithError(err).Warn("Failed to record last login")
	}

	issueToken(c, http.StatusOK, user)
}

// GET /api/auth/me
func GetMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := findUser(ctx, bson.M{"_id": userID})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, user)
}

type updateMeRequest struct {
	Name        *string             `json:"name" binding:"omitempty,min=2,max=50"`
	Bio         *string             `json:"bio" binding:"omitempty,max=500"`
	Avatar      *string             `json:"avatar" binding:"omitempty,url"`
	SocialLinks *models.SocialLinks `json:"socialLinks"`
}

// PUT /api/auth/me
func UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if req.Name != nil {
		set["name"] = strings.TrimSpace(*req.Name)
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

	ctx, cancel := dbContext(c)
	defer cancel()

	var user models.User
	err := database.Users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("User not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, &user)
}

// PUT /api/auth/password
func UpdatePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required,min=6,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := findUser(ctx, bson.M{"_id": userID})
	if err != nil {
		fail(c, err)
		return
	}
	if !user.CheckPassword(req.CurrentPassword) {
		fail(c, apperror.Unauthorized("Current password is incorrect"))
		return
	}
	if err := savePassword(ctx, user, req.NewPassword, nil); err != nil {
		fail(c, err)
		return
	}
	issueToken(c, http.StatusOK, user)
}

// savePassword rehashes and stores the password, clearing any fields in unset.
func savePassword(ctx context.Context, user *models.User, plain string, unset bson.M) error {
	if err := user.SetPassword(plain); err != nil {
		return apperror.Internal("Failed to hash password", err)
	}
	update := bson.M{"$set": bson.M{
		"password":          user.Password,
		"passwordChangedAt": user.PasswordChangedAt,
		"updatedAt":         time.Now(),
	}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err := database.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, update)
	return err
}

// POST /api/auth/forgot-password
func ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	sent := gin.H{"message": "If that email is registered, a reset link has been sent"}
	log := logger.Handler("ForgotPassword")

	user, err := findUser(ctx, bson.M{"email": models.NormalizeEmail(req.Email), "isActive": true})
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			log.WithError(err).Error("User lookup failed")
		}
		respond(c, http.StatusOK, sent)
		return
	}

	rawToken, hashed := newEmailToken()
	_, err = database.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"passwordResetToken":   hashed,
		"passwordResetExpires": time.Now().Add(resetTokenTTL),
	}})
	if err != nil {
		fail(c, err)
		return
	}

	email.Default().SendTemplateAsync(email.TemplatePasswordReset, user.Email, map[string]any{
		"name":     user.Name,
		"resetUrl": config.Get().FrontendURL + "/reset-password/" + rawToken,
	})
	log.WithField("user", user.ID.Hex()).Info("Password reset requested")
	respond(c, http.StatusOK, sent)
}

// POST /api/auth/reset-password/:token
func ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=6,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := findUser(ctx, bson.M{
		"passwordResetToken":   hashToken(c.Param("token")),
		"passwordResetExpires": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		if _, ok := apperror.As(err); ok {
			err = apperror.BadRequest("Invalid or expired reset token")
		}
		fail(c, err)
		return
	}

	if err := savePassword(ctx, user, req.Password, bson.M{"passwordResetToken": "", "passwordResetExpires": ""}); err != nil {
		fail(c, err)
		return
	}
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil

	logger.Handler("ResetPassword").WithField("user", user.ID.Hex()).Info("Password reset")
	issueToken(c, http.StatusOK, user)
}

// GET /api/auth/verify-email/:token
func VerifyEmail(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Users.UpdateOne(ctx,
		bson.M{
			"emailVerificationToken":   hashToken(c.Param("token")),
			"emailVerificationExpires": bson.M{"$gt": time.Now()},
		},
		bson.M{
			"$set":   bson.M{"isEmailVerified": true, "updatedAt": time.Now()},
			"$unset": bson.M{"emailVerificationToken": "", "emailVerificationExpires": ""},
		},
	)
	if err != nil {
		fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		fail(c, apperror.BadRequest("Invalid or expired verification token"))
		return
	}
	respond(c, http.StatusOK, gin.H{"verified": true})
}

// POST /api/auth/resend-verification
func ResendVerification(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	user, err := findUser(ctx, bson.M{"_id": userID})
	if err != nil {
		fail(c, err)
		return
	}
	if user.IsEmailVerified {
		fail(c, apperror.BadRequest("Email is already verified"))
		return
	}

	rawToken, hashed := newEmailToken()
	_, err = database.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"emailVerificationToken":   hashed,
		"emailVerificationExpires": time.Now().Add(verifyTokenTTL),
	}})
	if err != nil {
		fail(c, err)
		return
	}

	sendVerification(user, rawToken)
	respond(c, http.StatusOK, gin.H{"message": "Verification email sent"})
}

// userByID is shared by the profile and admin handlers.
func userByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findUser(ctx, bson.M{"_id": id})
}
