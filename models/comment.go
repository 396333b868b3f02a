package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CommentPending  = "pending"
	CommentApproved = "approved"
	CommentRejected = "rejected"
	CommentHidden   = "hidden"
	CommentFlagged  = "flagged"
)

const (
	ResourceBlog        = "blog"
	ResourceDestination = "destination"
	ResourceGuide       = "guide"
	ResourcePhoto       = "photo"
)

// AutoHideFlags is the number of flags at which a comment is hidden.
const AutoHideFlags = 3

// CommentAuthor is a snapshot taken at submission time. User is set only
// when the commenter was signed in.
type CommentAuthor struct {
	Name   string              `bson:"name" json:"name"`
	Email  string              `bson:"email" json:"-"`
	Avatar string              `bson:"avatar,omitempty" json:"avatar,omitempty"`
	User   *primitive.ObjectID `bson:"user,omitempty" json:"user,omitempty"`
}

type CommentEdit struct {
	Content  string    `bson:"content" json:"content"`
	EditedAt time.Time `bson:"editedAt" json:"editedAt"`
}

type CommentFlag struct {
	Reason     string    `bson:"reason" json:"reason"`
	ReportedBy string    `bson:"reportedBy,omitempty" json:"-"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

type Comment struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ResourceType string             `bson:"resourceType" json:"resourceType"`
	ResourceID   string             `bson:"resourceId" json:"resourceId"`
	ParentID     string             `bson:"parentId,omitempty" json:"parentId,omitempty"`
	Author       CommentAuthor      `bson:"author" json:"author"`
	Content      string             `bson:"content" json:"content"`

	Likes    int64 `bson:"likes" json:"likes"`
	Dislikes int64 `bson:"dislikes" json:"dislikes"`

	Edited      bool          `bson:"edited" json:"edited"`
	EditedAt    *time.Time    `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	EditHistory []CommentEdit `bson:"editHistory" json:"editHistory,omitempty"`

	Flags           []CommentFlag       `bson:"flags" json:"-"`
	Status          string              `bson:"status" json:"status"`
	ModerationNotes string              `bson:"moderationNotes,omitempty" json:"moderationNotes,omitempty"`
	ModeratedBy     *primitive.ObjectID `bson:"moderatedBy,omitempty" json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time          `bson:"moderatedAt,omitempty" json:"moderatedAt,omitempty"`

	IPAddress string `bson:"ipAddress,omitempty" json:"-"`
	UserAgent string `bson:"userAgent,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (c *Comment) IsReply() bool {
	return c.ParentID != ""
}

func (c *Comment) FlagCount() int {
	return len(c.Flags)
}

func (c *Comment) ShouldAutoHide() bool {
	return c.FlagCount() >= AutoHideFlags
}

// CommentView is the public shape of a comment in list responses.
type CommentView struct {
	Comment    `bson:",inline"`
	FlagCount  int   `bson:"-" json:"flagCount"`
	ReplyCount int64 `bson:"replyCount" json:"replyCount"`
}

func ValidCommentStatus(status string) bool {
	switch status {
	case CommentPending, CommentApproved, CommentRejected, CommentHidden, CommentFlagged:
		return true
	}
	return false
}

func ValidResourceType(t string) bool {
	switch t {
	case ResourceBlog, ResourceDestination, ResourceGuide, ResourcePhoto:
		return true
	}
	return false
}
