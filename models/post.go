package models

import (
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PostDraft     = "draft"
	PostPending   = "pending"
	PostPublished = "published"
	PostRejected  = "rejected"
	PostInactive  = "inactive"
)

const wordsPerMinute = 200

type SEO struct {
	MetaTitle       string `bson:"metaTitle,omitempty" json:"metaTitle,omitempty"`
	MetaDescription string `bson:"metaDescription,omitempty" json:"metaDescription,omitempty"`
}

type Post struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title         string               `bson:"title" json:"title"`
	Slug          string               `bson:"slug" json:"slug"`
	Content       string               `bson:"content" json:"content"`
	Excerpt       string               `bson:"excerpt" json:"excerpt"`
	FeaturedImage string               `bson:"featuredImage" json:"featuredImage"`
	Gallery       []string             `bson:"gallery" json:"gallery"`
	Categories    []primitive.ObjectID `bson:"categories" json:"categories"`
	Tags          []string             `bson:"tags" json:"tags"`
	Destination   *primitive.ObjectID  `bson:"destination,omitempty" json:"destination,omitempty"`

	Status          string              `bson:"status" json:"status"`
	Author          primitive.ObjectID  `bson:"author" json:"author"`
	ModeratedBy     *primitive.ObjectID `bson:"moderatedBy,omitempty" json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time          `bson:"moderatedAt,omitempty" json:"moderatedAt,omitempty"`
	ModerationNotes string              `bson:"moderationNotes,omitempty" json:"moderationNotes,omitempty"`
	PublishedAt     *time.Time          `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`

	Views      int64                `bson:"views" json:"views"`
	Likes      int64                `bson:"likes" json:"likes"`
	LikedBy    []primitive.ObjectID `bson:"likedBy" json:"-"`
	IsFeatured bool                 `bson:"isFeatured" json:"isFeatured"`
	ReadTime   int                  `bson:"readTime" json:"readTime"`
	SEO        SEO                  `bson:"seo" json:"seo"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes markup and collapses whitespace.
func StripHTML(s string) string {
	return strings.Join(strings.Fields(htmlTags.ReplaceAllString(s, " ")), " ")
}

// Prepare fills the derived fields: slug, excerpt and read time.
func (p *Post) Prepare() {
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	text := StripHTML(p.Content)
	if p.Excerpt == "" {
		p.Excerpt = Truncate(text, 200)
	}
	words := len(strings.Fields(text))
	p.ReadTime = (words + wordsPerMinute - 1) / wordsPerMinute
	if p.ReadTime < 1 {
		p.ReadTime = 1
	}
	if p.Gallery == nil {
		p.Gallery = []string{}
	}
	if p.Categories == nil {
		p.Categories = []primitive.ObjectID{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.LikedBy == nil {
		p.LikedBy = []primitive.ObjectID{}
	}
}

var postTransitions = map[string][]string{
	PostDraft:     {PostPending},
	PostPending:   {PostPublished, PostRejected, PostDraft},
	PostPublished: {PostInactive, PostPending},
	PostRejected:  {PostPending, PostDraft},
	PostInactive:  {PostPublished, PostPending},
}

// CanTransition reports whether the moderation workflow allows moving to next.
func (p *Post) CanTransition(next string) bool {
	for _, s := range postTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func ValidPostStatus(status string) bool {
	_, ok := postTransitions[status]
	return ok
}

// Truncate shortens s to at most n runes, cutting at a word boundary.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
