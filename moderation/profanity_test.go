package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsProfanity(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"Great post!", false},
		{"What a load of crap", true},
		{"SHIT happens", true},
		{"sh1t happens", true},
		{"you are a b1tch", true},
		{"@$$hole", true},
		{"Scunthorpe is a town", false},
		{"I passed the class", false},
		{"dickens was a writer", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, ContainsProfanity(tt.text))
		})
	}
}

func TestAdd(t *testing.T) {
	assert.False(t, ContainsProfanity("that is frak"))
	Add("Frak")
	assert.True(t, ContainsProfanity("that is frak"))
}
