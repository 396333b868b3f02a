package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PartnerPending  = "pending"
	PartnerReviewed = "reviewed"
	PartnerApproved = "approved"
	PartnerRejected = "rejected"
)

type Partner struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Company         string             `bson:"company" json:"company"`
	Email           string             `bson:"email" json:"email"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Website         string             `bson:"website,omitempty" json:"website,omitempty"`
	PartnershipType string             `bson:"partnershipType" json:"partnershipType"`
	Message         string             `bson:"message" json:"message"`
	Status          string             `bson:"status" json:"status"`
	AdminNotes      string             `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	ReviewedAt      *time.Time         `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

var partnerTransitions = map[string][]string{
	PartnerPending:  {PartnerReviewed, PartnerApproved, PartnerRejected},
	PartnerReviewed: {PartnerApproved, PartnerRejected},
	PartnerApproved: {PartnerRejected},
	PartnerRejected: {PartnerReviewed, PartnerApproved},
}

func (p *Partner) CanTransition(next string) bool {
	if p.Status == next {
		return true
	}
	for _, s := range partnerTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// IsPartnerDecision reports whether the status is a final answer sent to the applicant.
func IsPartnerDecision(status string) bool {
	return status == PartnerApproved || status == PartnerRejected
}

func ValidPartnerStatus(status string) bool {
	_, ok := partnerTransitions[status]
	return ok
}

func ValidPartnershipType(t string) bool {
	switch t {
	case "hotel", "tour", "brand", "affiliate", "other":
		return true
	}
	return false
}
