package email

import (
	"context"
	"time"

	"wayfarer/database"
	"wayfarer/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Built-in template keys.
const (
	TemplateWelcome             = "welcome"
	TemplateEmailVerification   = "email-verification"
	TemplatePasswordReset       = "password-reset"
	TemplateNewsletterConfirm   = "newsletter-confirm"
	TemplateNewsletterWeekly    = "newsletter-weekly"
	TemplateNewsletterCampaign  = "newsletter-campaign"
	TemplateContactNotification = "contact-notification"
	TemplateContactReply        = "contact-reply"
	TemplatePartnerStatus       = "partner-status"
)

const layoutOpen = `<div style="font-family:Helvetica,Arial,sans-serif;max-width:600px;margin:0 auto;color:#1e293b">` +
	`<h2 style="color:#0f766e">{{site.name}}</h2>`

const layoutClose = `<hr style="border:none;border-top:1px solid #e2e8f0"/>` +
	`<p style="font-size:12px;color:#64748b"><a href="{{site.url}}">{{site.url}}</a></p></div>`

var defaults = map[string]models.EmailTemplate{
	TemplateWelcome: {
		Name:      "Welcome",
		Subject:   "Welcome to {{site.name}}, {{name}}!",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Your account is ready. Start exploring destinations and guides.</p>` + layoutClose,
		Text:      "Hi {{name}},\n\nYour account is ready. Start exploring at {{site.url}}.",
		Variables: []string{"name"},
	},
	TemplateEmailVerification: {
		Name:      "Email verification",
		Subject:   "Confirm your email for {{site.name}}",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Please confirm your email address:</p><p><a href="{{verifyUrl}}">Verify email</a></p><p>The link expires in 24 hours.</p>` + layoutClose,
		Text:      "Hi {{name}},\n\nConfirm your email address: {{verifyUrl}}\n\nThe link expires in 24 hours.",
		Variables: []string{"name", "verifyUrl"},
	},
	TemplatePasswordReset: {
		Name:      "Password reset",
		Subject:   "Reset your {{site.name}} password",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Someone asked to reset your password. If it was you, follow this link within 10 minutes:</p><p><a href="{{resetUrl}}">Reset password</a></p><p>Otherwise you can ignore this email.</p>` + layoutClose,
		Text:      "Hi {{name}},\n\nReset your password within 10 minutes: {{resetUrl}}\n\nIf you did not ask for this, ignore this email.",
		Variables: []string{"name", "resetUrl"},
	},
	TemplateNewsletterConfirm: {
		Name:      "Newsletter confirmation",
		Subject:   "Confirm your {{site.name}} subscription",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Thanks for subscribing. Please confirm:</p><p><a href="{{verifyUrl}}">Confirm subscription</a></p><p><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>` + layoutClose,
		Text:      "Hi {{name}},\n\nConfirm your subscription: {{verifyUrl}}\n\nUnsubscribe: {{unsubscribeUrl}}",
		Variables: []string{"name", "verifyUrl", "unsubscribeUrl"},
	},
	TemplateNewsletterWeekly: {
		Name:      "Weekly digest",
		Subject:   "This week on {{site.name}}",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Here is what we published this week:</p>{{postsHtml}}<p style="font-size:12px"><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>` + layoutClose,
		Text:      "Hi {{name}},\n\nHere is what we published this week:\n\n{{postsText}}\n\nUnsubscribe: {{unsubscribeUrl}}",
		Variables: []string{"name", "email", "postsHtml", "unsubscribeUrl"},
	},
	TemplateNewsletterCampaign: {
		Name:      "Newsletter campaign",
		Subject:   "{{subject}}",
		HTML:      layoutOpen + `<p>Hi {{name}},</p>{{contentHtml}}<p style="font-size:12px"><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>` + layoutClose,
		Text:      "Hi {{name}},\n\n{{contentText}}\n\nUnsubscribe: {{unsubscribeUrl}}",
		Variables: []string{"name", "subject", "contentHtml", "unsubscribeUrl"},
	},
	TemplateContactNotification: {
		Name:      "Contact notification",
		Subject:   "New message from {{name}}: {{subject}}",
		HTML:      layoutOpen + `<p><strong>{{name}}</strong> ({{email}}) wrote:</p><blockquote>{{message}}</blockquote>` + layoutClose,
		Text:      "{{name}} ({{email}}) wrote:\n\n{{message}}",
		Variables: []string{"name", "email", "subject", "message"},
	},
	TemplateContactReply: {
		Name:      "Contact reply",
		Subject:   "Re: {{subject}}",
		HTML:      layoutOpen + `<p>Hi {{name}},</p>{{replyHtml}}<p style="color:#64748b">You wrote:</p><blockquote>{{message}}</blockquote>` + layoutClose,
		Text:      "Hi {{name}},\n\n{{reply}}\n\nYou wrote:\n{{message}}",
		Variables: []string{"name", "subject", "reply", "message"},
	},
	TemplatePartnerStatus: {
		Name:      "Partnership decision",
		Subject:   "Your partnership application with {{site.name}}",
		HTML:      layoutOpen + `<p>Hi {{name}},</p><p>Your application for {{company}} has been <strong>{{status}}</strong>.</p><p>{{notes}}</p>` + layoutClose,
		Text:      "Hi {{name}},\n\nYour application for {{company}} has been {{status}}.\n\n{{notes}}",
		Variables: []string{"name", "company", "status"},
	},
}

// Builtin returns the compiled-in template for key.
func Builtin(key string) (*models.EmailTemplate, bool) {
	t, ok := defaults[key]
	if !ok {
		return nil, false
	}
	t.Key = key
	t.IsActive = true
	return &t, true
}

func BuiltinKeys() []string {
	return []string{
		TemplateWelcome,
		TemplateEmailVerification,
		TemplatePasswordReset,
		TemplateNewsletterConfirm,
		TemplateNewsletterWeekly,
		TemplateNewsletterCampaign,
		TemplateContactNotification,
		TemplateContactReply,
		TemplatePartnerStatus,
	}
}

// EnsureDefaultTemplates inserts built-in templates that are missing from
// the collection. Existing documents are never overwritten.
func EnsureDefaultTemplates(ctx context.Context) (int, error) {
	if database.EmailTemplates == nil {
		return 0, database.ErrNotConnected
	}

	inserted := 0
	now := time.Now()
	for _, key := range BuiltinKeys() {
		t, _ := Builtin(key)
		res, err := database.EmailTemplates.UpdateOne(ctx,
			bson.M{"key": key},
			bson.M{"$setOnInsert": bson.M{
				"key":         key,
				"name":        t.Name,
				"description": "Built-in template",
				"subject":     t.Subject,
				"html":        t.HTML,
				"text":        t.Text,
				"variables":   t.Variables,
				"isActive":    true,
				"createdAt":   now,
				"updatedAt":   now,
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return inserted, err
		}
		if res.UpsertedCount > 0 {
			inserted++
		}
	}
	return inserted, nil
}
