package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Photo struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title       string              `bson:"title" json:"title"`
	Caption     string              `bson:"caption" json:"caption"`
	URL         string              `bson:"url" json:"url"`
	PublicID    string              `bson:"publicId" json:"publicId"`
	Destination *primitive.ObjectID `bson:"destination,omitempty" json:"destination,omitempty"`
	Location    string              `bson:"location" json:"location"`
	Tags        []string            `bson:"tags" json:"tags"`
	UploadedBy  primitive.ObjectID  `bson:"uploadedBy" json:"uploadedBy"`
	IsPublished bool                `bson:"isPublished" json:"isPublished"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}
