package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContactUnread   = "unread"
	ContactRead     = "read"
	ContactReplied  = "replied"
	ContactArchived = "archived"
)

type Contact struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Subject    string             `bson:"subject" json:"subject"`
	Message    string             `bson:"message" json:"message"`
	Status     string             `bson:"status" json:"status"`
	AdminNotes string             `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	RepliedAt  *time.Time         `bson:"repliedAt,omitempty" json:"repliedAt,omitempty"`
	IPAddress  string             `bson:"ipAddress,omitempty" json:"-"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

var contactTransitions = map[string][]string{
	ContactUnread:   {ContactRead, ContactReplied, ContactArchived},
	ContactRead:     {ContactReplied, ContactArchived, ContactUnread},
	ContactReplied:  {ContactArchived},
	ContactArchived: {ContactRead},
}

// CanTransition reports whether the inbox workflow allows moving to next.
func (c *Contact) CanTransition(next string) bool {
	if c.Status == next {
		return true
	}
	for _, s := range contactTransitions[c.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func ValidContactStatus(status string) bool {
	_, ok := contactTransitions[status]
	return ok
}
