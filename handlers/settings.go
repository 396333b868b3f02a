package handlers

import (
	"context"
	"net/http"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// loadSettings returns the site settings, creating the defaults on first use.
func loadSettings(ctx context.Context) (*models.SiteSettings, error) {
	defaults := models.DefaultSettings()
	res := database.SiteSettings.FindOneAndUpdate(ctx,
		bson.M{"key": models.SettingsKey},
		bson.M{"$setOnInsert": defaults},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var settings models.SiteSettings
	if err := res.Decode(&settings); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost an upsert race; the winner's document is there now.
			err = database.SiteSettings.FindOne(ctx, bson.M{"key": models.SettingsKey}).Decode(&settings)
		}
		if err != nil {
			return nil, err
		}
	}
	return &settings, nil
}

// GET /api/settings
func GetSettings(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	settings, err := loadSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	SiteName *string             `json:"siteName" binding:"omitempty,min=1,max=100"`
	Tagline  *string             `json:"tagline" binding:"omitempty,max=200"`
	Contact  *models.ContactInfo `json:"contact"`
	Social   *models.SocialLinks `json:"social"`
	SEO      *models.SiteSEO     `json:"seo"`
	Theme    *themeRequest       `json:"theme"`
	Features *featuresRequest    `json:"features"`
}

type themeRequest struct {
	PrimaryColor   string `json:"primaryColor" binding:"omitempty,hexcolor"`
	SecondaryColor string `json:"secondaryColor" binding:"omitempty,hexcolor"`
	AccentColor    string `json:"accentColor" binding:"omitempty,hexcolor"`
}

// featuresRequest toggles individual features; omitted ones keep their value.
type featuresRequest struct {
	Comments        *bool `json:"comments"`
	Newsletter      *bool `json:"newsletter"`
	Registration    *bool `json:"registration"`
	PremiumContent  *bool `json:"premiumContent"`
	MaintenanceMode *bool `json:"maintenanceMode"`
}

// updates returns the $set document for the sections present in the request.
func (r *updateSettingsRequest) updates() bson.M {
	set := bson.M{}
	if r.SiteName != nil {
		set["siteName"] = *r.SiteName
	}
	if r.Tagline != nil {
		set["tagline"] = *r.Tagline
	}
	if r.Contact != nil {
		set["contact"] = r.Contact
	}
	if r.Social != nil {
		set["social"] = r.Social
	}
	if r.SEO != nil {
		if r.SEO.Keywords == nil {
			r.SEO.Keywords = []string{}
		}
		set["seo"] = r.SEO
	}
	if r.Theme != nil {
		if r.Theme.PrimaryColor != "" {
			set["theme.primaryColor"] = r.Theme.PrimaryColor
		}
		if r.Theme.SecondaryColor != "" {
			set["theme.secondaryColor"] = r.Theme.SecondaryColor
		}
		if r.Theme.AccentColor != "" {
			set["theme.accentColor"] = r.Theme.AccentColor
		}
	}
	if f := r.Features; f != nil {
		for key, v := range map[string]*bool{
			"comments":        f.Comments,
			"newsletter":      f.Newsletter,
			"registration":    f.Registration,
			"premiumContent":  f.PremiumContent,
			"maintenanceMode": f.MaintenanceMode,
		} {
			if v != nil {
				set["features."+key] = *v
			}
		}
	}
	return set
}

// PUT /api/settings
func UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	set := req.updates()
	if len(set) == 0 {
		fail(c, apperror.BadRequest("No settings to update"))
		return
	}
	set["updatedAt"] = time.Now()

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := loadSettings(ctx); err != nil {
		fail(c, err)
		return
	}

	var settings models.SiteSettings
	err := database.SiteSettings.FindOneAndUpdate(ctx,
		bson.M{"key": models.SettingsKey},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&settings)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, settings)
}
