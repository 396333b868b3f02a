package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{"heading", "# Lisbon", "<h1>Lisbon</h1>"},
		{"bold", "**pastel de nata**", "<strong>pastel de nata</strong>"},
		{"list", "- tram 28\n- miradouro", "<li>tram 28</li>"},
		{"autolink", "see https://wayfarer.travel", `<a href="https://wayfarer.travel">`},
		{"table", "| a | b |\n|---|---|\n| 1 | 2 |", "<table>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := ToHTML(tt.input)
			require.NoError(t, err)
			assert.Contains(t, html, tt.contains)
		})
	}
}

func TestToHTML_DropsRawHTML(t *testing.T) {
	html, err := ToHTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}
