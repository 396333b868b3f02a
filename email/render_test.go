package email

import (
	"testing"

	"wayfarer/models"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	data := map[string]any{
		"name":  "Jo",
		"count": 3,
		"site":  map[string]any{"name": "Wayfarer", "url": "https://wayfarer.travel"},
		"links": map[string]string{"unsubscribe": "https://wayfarer.travel/u/abc"},
		"empty": nil,
	}

	tests := []struct {
		name     string
		tpl      string
		expected string
	}{
		{"simple", "Hi {{name}}!", "Hi Jo!"},
		{"spaces", "Hi {{ name }}!", "Hi Jo!"},
		{"number", "{{count}} new posts", "3 new posts"},
		{"nested any", "{{site.name}} at {{site.url}}", "Wayfarer at https://wayfarer.travel"},
		{"nested string map", "<a href=\"{{links.unsubscribe}}\">", "<a href=\"https://wayfarer.travel/u/abc\">"},
		{"unknown left alone", "Hello {{missing}} and {{site.missing}}", "Hello {{missing}} and {{site.missing}}"},
		{"map without field left alone", "{{site}}", "{{site}}"},
		{"nil renders empty", "[{{empty}}]", "[]"},
		{"repeated", "{{name}} {{name}}", "Jo Jo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.tpl, data))
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	tpl := &models.EmailTemplate{
		Subject: "Welcome to {{site.name}}",
		HTML:    "<p>Hi {{name}}</p>",
		Text:    "Hi {{name}}",
	}
	out := RenderTemplate(tpl, map[string]any{"name": "Ana", "site": map[string]string{"name": "Wayfarer"}})

	assert.Equal(t, "Welcome to Wayfarer", out.Subject)
	assert.Equal(t, "<p>Hi Ana</p>", out.HTML)
	assert.Equal(t, "Hi Ana", out.Text)
}
