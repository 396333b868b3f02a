package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `bson:"lng" json:"lng" binding:"gte=-180,lte=180"`
}

// IsZero reports whether the coordinates were never set.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// DistanceTo returns the great-circle distance in kilometres (haversine).
func (c Coordinates) DistanceTo(o Coordinates) float64 {
	const R = 6371 // Earth's radius in kilometers

	dLat := (o.Lat - c.Lat) * math.Pi / 180
	dLon := (o.Lng - c.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(c.Lat*math.Pi/180)*math.Cos(o.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

type Activity struct {
	Name        string  `bson:"name" json:"name"`
	Description string  `bson:"description" json:"description"`
	Price       float64 `bson:"price,omitempty" json:"price,omitempty"`
}

type Dish struct {
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description" json:"description"`
}

type Destination struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Slug             string             `bson:"slug" json:"slug"`
	Country          string             `bson:"country" json:"country"`
	Region           string             `bson:"region" json:"region"`
	Description      string             `bson:"description" json:"description"`
	ShortDescription string             `bson:"shortDescription" json:"shortDescription"`
	FeaturedImage    string             `bson:"featuredImage" json:"featuredImage"`
	Gallery          []string           `bson:"gallery" json:"gallery"`
	Coordinates      Coordinates        `bson:"coordinates" json:"coordinates"`
	BestTimeToVisit  string             `bson:"bestTimeToVisit" json:"bestTimeToVisit"`
	Activities       []Activity         `bson:"activities" json:"activities"`
	Cuisine          []Dish             `bson:"cuisine" json:"cuisine"`
	Tips             []string           `bson:"tips" json:"tips"`
	Highlights       []string           `bson:"highlights" json:"highlights"`
	IsPublished      bool               `bson:"isPublished" json:"isPublished"`
	IsFeatured       bool               `bson:"isFeatured" json:"isFeatured"`
	Views            int64              `bson:"views" json:"views"`
	CreatedBy        primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (d *Destination) Prepare() {
	if d.Slug == "" {
		d.Slug = Slugify(d.Name)
	}
	if d.ShortDescription == "" {
		d.ShortDescription = Truncate(StripHTML(d.Description), 160)
	}
	if d.Gallery == nil {
		d.Gallery = []string{}
	}
	if d.Activities == nil {
		d.Activities = []Activity{}
	}
	if d.Cuisine == nil {
		d.Cuisine = []Dish{}
	}
	if d.Tips == nil {
		d.Tips = []string{}
	}
	if d.Highlights == nil {
		d.Highlights = []string{}
	}
}
