package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DifficultyEasy        = "easy"
	DifficultyModerate    = "moderate"
	DifficultyChallenging = "challenging"
)

type GuideSection struct {
	Heading string `bson:"heading" json:"heading"`
	Body    string `bson:"body" json:"body"`
}

type Guide struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title         string              `bson:"title" json:"title"`
	Slug          string              `bson:"slug" json:"slug"`
	Destination   *primitive.ObjectID `bson:"destination,omitempty" json:"destination,omitempty"`
	Summary       string              `bson:"summary" json:"summary"`
	Content       string              `bson:"content" json:"content"`
	ContentHTML   string              `bson:"contentHtml" json:"contentHtml"`
	Sections      []GuideSection      `bson:"sections" json:"sections"`
	Tips          []string            `bson:"tips" json:"tips"`
	Difficulty    string              `bson:"difficulty" json:"difficulty"`
	Duration      string              `bson:"duration" json:"duration"`
	Budget        string              `bson:"budget" json:"budget"`
	FeaturedImage string              `bson:"featuredImage" json:"featuredImage"`
	Gallery       []string            `bson:"gallery" json:"gallery"`
	Tags          []string            `bson:"tags" json:"tags"`
	IsPublished   bool                `bson:"isPublished" json:"isPublished"`
	Author        primitive.ObjectID  `bson:"author" json:"author"`
	Views         int64               `bson:"views" json:"views"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (g *Guide) Prepare() {
	if g.Slug == "" {
		g.Slug = Slugify(g.Title)
	}
	if g.Difficulty == "" {
		g.Difficulty = DifficultyModerate
	}
	if g.Sections == nil {
		g.Sections = []GuideSection{}
	}
	if g.Tips == nil {
		g.Tips = []string{}
	}
	if g.Gallery == nil {
		g.Gallery = []string{}
	}
	if g.Tags == nil {
		g.Tags = []string{}
	}
}

func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyModerate, DifficultyChallenging:
		return true
	}
	return false
}
