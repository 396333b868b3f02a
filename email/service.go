// Package email renders templates and delivers mail over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			m.AddAlternative("text/html", msg.HTML)
		}
	} else {
		m.SetBody("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender stands in for SMTP in development: it logs instead of sending.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Log.WithField("to", msg.To).WithField("subject", msg.Subject).Info("Email (not sent, SMTP not configured)")
	return nil
}

// TemplateStore looks up active templates by key.
type TemplateStore interface {
	FindActive(ctx context.Context, key string) (*models.EmailTemplate, error)
}

type mongoTemplates struct{}

func (mongoTemplates) FindActive(ctx context.Context, key string) (*models.EmailTemplate, error) {
	if database.EmailTemplates == nil {
		return nil, database.ErrNotConnected
	}
	var t models.EmailTemplate
	if err := database.EmailTemplates.FindOne(ctx, bson.M{"key": key, "isActive": true}).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

type Site struct {
	Name string
	URL  string
}

type Service struct {
	sender    Sender
	templates TemplateStore
	site      Site
}

func NewService(sender Sender, templates TemplateStore, site Site) *Service {
	if templates == nil {
		templates = mongoTemplates{}
	}
	return &Service{sender: sender, templates: templates, site: site}
}

func (s *Service) Site() Site {
	return s.site
}

func (s *Service) Send(ctx context.Context, msg Message) error {
	return s.sender.Send(ctx, msg)
}

// Template returns the stored template for key, falling back to the
// built-in version when none is stored or the store is unavailable.
func (s *Service) Template(ctx context.Context, key string) (*models.EmailTemplate, error) {
	t, err := s.templates.FindActive(ctx, key)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		logger.Log.WithError(err).WithField("template", key).Warn("Template lookup failed, using built-in")
	}
	if b, ok := Builtin(key); ok {
		return b, nil
	}
	return nil, fmt.Errorf("email template %q not found", key)
}

// Compose renders the template for key. site.name and site.url are added
// to data when absent.
func (s *Service) Compose(ctx context.Context, key, to string, data map[string]any) (Message, error) {
	t, err := s.Template(ctx, key)
	if err != nil {
		return Message{}, err
	}
	r := RenderTemplate(t, s.withSite(data))
	return Message{To: to, Subject: r.Subject, HTML: r.HTML, Text: r.Text}, nil
}

// Preview renders t with data plus the site variables, without sending.
func (s *Service) Preview(t *models.EmailTemplate, data map[string]any) Rendered {
	return RenderTemplate(t, s.withSite(data))
}

func (s *Service) SendTemplate(ctx context.Context, key, to string, data map[string]any) error {
	msg, err := s.Compose(ctx, key, to, data)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg)
}

// SendTemplateAsync sends in the background and logs failures. Request
// handlers use it so SMTP latency never blocks a response.
func (s *Service) SendTemplateAsync(key, to string, data map[string]any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.WithField("template", key).Errorf("Panic sending email: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.SendTemplate(ctx, key, to, data); err != nil {
			logger.Log.WithError(err).WithField("template", key).WithField("to", to).Error("Failed to send email")
		}
	}()
}

func (s *Service) withSite(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if _, ok := out["site"]; !ok {
		out["site"] = map[string]any{"name": s.site.Name, "url": s.site.URL}
	}
	return out
}

var current = NewService(LogSender{}, nil, Site{Name: "Wayfarer", URL: "http://localhost:3000"})

// Init builds the shared service from configuration.
func Init(cfg *config.Config) *Service {
	var sender Sender = LogSender{}
	if cfg.SMTP.Configured() {
		sender = NewSMTPSender(cfg.SMTP)
	} else {
		logger.Log.Warn("SMTP not configured, emails will be logged only")
	}
	current = NewService(sender, nil, Site{Name: cfg.SMTP.FromName, URL: cfg.FrontendURL})
	return current
}

func Default() *Service {
	return current
}

// Use replaces the shared service; tests install one with a fake sender.
func Use(s *Service) {
	current = s
}
