package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SettingsKey identifies the single site settings document.
const SettingsKey = "global"

type ContactInfo struct {
	Email   string `bson:"email" json:"email"`
	Phone   string `bson:"phone" json:"phone"`
	Address string `bson:"address" json:"address"`
}

type SiteSEO struct {
	MetaTitle       string   `bson:"metaTitle" json:"metaTitle"`
	MetaDescription string   `bson:"metaDescription" json:"metaDescription"`
	Keywords        []string `bson:"keywords" json:"keywords"`
	OGImage         string   `bson:"ogImage" json:"ogImage"`
}

type Theme struct {
	PrimaryColor   string `bson:"primaryColor" json:"primaryColor"`
	SecondaryColor string `bson:"secondaryColor" json:"secondaryColor"`
	AccentColor    string `bson:"accentColor" json:"accentColor"`
}

type Features struct {
	Comments        bool `bson:"comments" json:"comments"`
	Newsletter      bool `bson:"newsletter" json:"newsletter"`
	Registration    bool `bson:"registration" json:"registration"`
	PremiumContent  bool `bson:"premiumContent" json:"premiumContent"`
	MaintenanceMode bool `bson:"maintenanceMode" json:"maintenanceMode"`
}

type SiteSettings struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Key       string             `bson:"key" json:"-"`
	SiteName  string             `bson:"siteName" json:"siteName"`
	Tagline   string             `bson:"tagline" json:"tagline"`
	Contact   ContactInfo        `bson:"contact" json:"contact"`
	Social    SocialLinks        `bson:"social" json:"social"`
	SEO       SiteSEO            `bson:"seo" json:"seo"`
	Theme     Theme              `bson:"theme" json:"theme"`
	Features  Features           `bson:"features" json:"features"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DefaultSettings is what a fresh installation starts with.
func DefaultSettings() SiteSettings {
	now := time.Now()
	return SiteSettings{
		Key:      SettingsKey,
		SiteName: "Wayfarer",
		Tagline:  "Stories and guides from the road",
		SEO: SiteSEO{
			MetaTitle:       "Wayfarer - Travel stories and guides",
			MetaDescription: "Destination guides, travel stories and tips from the road.",
			Keywords:        []string{"travel", "blog", "destinations", "guides"},
		},
		Theme: Theme{
			PrimaryColor:   "#0f766e",
			SecondaryColor: "#f59e0b",
			AccentColor:    "#1e293b",
		},
		Features: Features{
			Comments:     true,
			Newsletter:   true,
			Registration: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
