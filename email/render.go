package email

import (
	"fmt"
	"regexp"

	"wayfarer/models"
)

var token = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)(?:\.([A-Za-z0-9_]+))?\s*\}\}`)

// Render substitutes {{name}} and {{object.field}} tokens. Tokens with no
// matching value are left in place.
func Render(tpl string, data map[string]any) string {
	return token.ReplaceAllStringFunc(tpl, func(match string) string {
		m := token.FindStringSubmatch(match)
		value, ok := lookup(data, m[1], m[2])
		if !ok {
			return match
		}
		return value
	})
}

func lookup(data map[string]any, name, field string) (string, bool) {
	v, ok := data[name]
	if !ok {
		return "", false
	}
	if field == "" {
		return scalar(v)
	}
	switch inner := v.(type) {
	case map[string]any:
		fv, ok := inner[field]
		if !ok {
			return "", false
		}
		return scalar(fv)
	case map[string]string:
		fv, ok := inner[field]
		return fv, ok
	}
	return "", false
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case int, int32, int64, float32, float64, bool, uint, uint32, uint64:
		return fmt.Sprint(s), true
	}
	return "", false
}

// Rendered is a template with all tokens applied.
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

func RenderTemplate(t *models.EmailTemplate, data map[string]any) Rendered {
	return Rendered{
		Subject: Render(t.Subject, data),
		HTML:    Render(t.HTML, data),
		Text:    Render(t.Text, data),
	}
}
