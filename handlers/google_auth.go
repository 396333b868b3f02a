package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"wayfarer/apperror"
	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/middleware"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "oauth_state"
)

var googleOAuthConfig *oauth2.Config

// InitGoogle enables Google sign-in when a client id and secret are configured.
func InitGoogle(cfg *config.Config) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		googleOAuthConfig = nil
		logger.Log.Warn("Google OAuth not configured, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
		return
	}
	googleOAuthConfig = &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
	logger.Log.Info("Google OAuth configured")
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

var errGoogleDisabled = apperror.Unavailable("Google sign-in is not configured")

// GET /api/auth/google/url
func GoogleAuthURL(c *gin.Context) {
	if googleOAuthConfig == nil {
		fail(c, errGoogleDisabled)
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int((10 * time.Minute).Seconds()), "/", "", config.Get().IsProduction(), true)
	respond(c, http.StatusOK, gin.H{"url": googleOAuthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)})
}

// GET /api/auth/google/callback
func GoogleCallback(c *gin.Context) {
	if googleOAuthConfig == nil {
		fail(c, errGoogleDisabled)
		return
	}
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		fail(c, apperror.BadRequest("Invalid OAuth state"))
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", config.Get().IsProduction(), true)

	code := c.Query("code")
	if code == "" {
		fail(c, apperror.BadRequest("Authorization code missing"))
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	info, err := fetchGoogleUser(ctx, code)
	if err != nil {
		fail(c, apperror.Wrap(http.StatusBadGateway, "Google sign-in failed", err))
		return
	}
	if info.Email == "" || !info.VerifiedEmail {
		fail(c, apperror.BadRequest("Google account email is not verified"))
		return
	}

	user, err := upsertGoogleUser(ctx, info)
	if err != nil {
		fail(c, err)
		return
	}
	if !user.IsActive {
		fail(c, apperror.Forbidden("Account is deactivated"))
		return
	}

	token, err := middleware.GenerateToken(user.ID.Hex(), user.Role)
	if err != nil {
		fail(c, apperror.Internal("Failed to generate token", err))
		return
	}
	logger.Handler("GoogleCallback").WithField("user", user.ID.Hex()).Info("Google sign-in")
	c.Redirect(http.StatusFound, config.Get().FrontendURL+"/auth/callback?token="+url.QueryEscape(token))
}

func fetchGoogleUser(ctx context.Context, code string) (*googleUserInfo, error) {
	token, err := googleOAuthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	resp, err := googleOAuthConfig.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %s", resp.Status)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

// upsertGoogleUser links the Google id to an existing account with the same
// email, or creates a reader account.
func upsertGoogleUser(ctx context.Context, info *googleUserInfo) (*models.User, error) {
	emailAddr := models.NormalizeEmail(info.Email)
	now := time.Now()

	var user models.User
	err := database.Users.FindOneAndUpdate(ctx,
		bson.M{"$or": bson.A{bson.M{"googleId": info.ID}, bson.M{"email": emailAddr}}},
		bson.M{"$set": bson.M{"googleId": info.ID, "isEmailVerified": true, "lastLogin": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	avatar := info.Picture
	if avatar == "" {
		avatar = models.DefaultAvatar
	}
	user = models.User{
		ID:              primitive.NewObjectID(),
		Name:            info.Name,
		Email:           emailAddr,
		Role:            models.RoleReader,
		Avatar:          avatar,
		Followers:       []primitive.ObjectID{},
		Following:       []primitive.ObjectID{},
		IsEmailVerified: true,
		AuthProvider:    "google",
		GoogleID:        info.ID,
		IsActive:        true,
		LastLogin:       &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if user.Name == "" {
		user.Name = emailAddr
	}
	if _, err := database.Users.InsertOne(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}
