package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SubscriberActive       = "active"
	SubscriberUnsubscribed = "unsubscribed"
)

type NewsletterPreferences struct {
	Weekly     bool     `bson:"weekly" json:"weekly"`
	Promotions bool     `bson:"promotions" json:"promotions"`
	Categories []string `bson:"categories" json:"categories"`
}

func DefaultPreferences() NewsletterPreferences {
	return NewsletterPreferences{Weekly: true, Promotions: false, Categories: []string{}}
}

type Newsletter struct {
	ID                primitive.ObjectID    `bson:"_id,omitempty" json:"id"`
	Email             string                `bson:"email" json:"email"`
	Name              string                `bson:"name,omitempty" json:"name,omitempty"`
	Status            string                `bson:"status" json:"status"`
	Preferences       NewsletterPreferences `bson:"preferences" json:"preferences"`
	IsVerified        bool                  `bson:"isVerified" json:"isVerified"`
	VerificationToken string                `bson:"verificationToken,omitempty" json:"-"`
	UnsubscribeToken  string                `bson:"unsubscribeToken" json:"-"`
	Source            string                `bson:"source,omitempty" json:"source,omitempty"`
	SubscribedAt      time.Time             `bson:"subscribedAt" json:"subscribedAt"`
	UnsubscribedAt    *time.Time            `bson:"unsubscribedAt,omitempty" json:"unsubscribedAt,omitempty"`
	LastSentAt        *time.Time            `bson:"lastSentAt,omitempty" json:"lastSentAt,omitempty"`
	CreatedAt         time.Time             `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time             `bson:"updatedAt" json:"updatedAt"`
}

func (n *Newsletter) IsActive() bool {
	return n.Status == SubscriberActive
}

// DisplayName falls back to the mailbox part of the address.
func (n *Newsletter) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	for i := 0; i < len(n.Email); i++ {
		if n.Email[i] == '@' {
			return n.Email[:i]
		}
	}
	return "traveler"
}
