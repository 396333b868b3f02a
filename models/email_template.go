package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmailTemplate struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Key         string             `bson:"key" json:"key"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Subject     string             `bson:"subject" json:"subject"`
	HTML        string             `bson:"html" json:"html"`
	Text        string             `bson:"text" json:"text"`
	Variables   []string           `bson:"variables" json:"variables"`
	IsActive    bool               `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MissingVariables lists declared variables that data does not provide.
// Dotted names are checked one level deep.
func (t *EmailTemplate) MissingVariables(data map[string]any) []string {
	missing := []string{}
	for _, v := range t.Variables {
		if !hasVariable(data, v) {
			missing = append(missing, v)
		}
	}
	return missing
}

func hasVariable(data map[string]any, name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			switch inner := data[name[:i]].(type) {
			case map[string]any:
				_, ok := inner[name[i+1:]]
				return ok
			case map[string]string:
				_, ok := inner[name[i+1:]]
				return ok
			}
			return false
		}
	}
	_, ok := data[name]
	return ok
}
