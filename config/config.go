package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	FrontendURL string
	AdminEmail  string

	MongoURI string
	MongoDB  string

	JWTSecret string
	JWTExpire time.Duration

	SMTP SMTPConfig

	NewsletterCron       string
	NewsletterBatchDelay time.Duration

	CloudinaryURL string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	RateLimitMax    int
	RateLimitWindow time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// Configured reports whether enough SMTP settings are present to send mail.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port != 0 && s.From != ""
}

var current *Config

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", getEnv("NODE_ENV", "development"))

	jwtExpire, err := ParseDuration(getEnv("JWT_EXPIRE", "7d"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRE: %w", err)
	}
	batchDelay, err := ParseDuration(getEnv("NEWSLETTER_BATCH_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("NEWSLETTER_BATCH_DELAY: %w", err)
	}
	window, err := ParseDuration(getEnv("RATE_LIMIT_WINDOW", "15m"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}

	defaultCron := "*/30 * * * *"
	if env == "production" {
		defaultCron = "0 9 * * 1"
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AdminEmail:  os.Getenv("ADMIN_EMAIL"),

		MongoURI: os.Getenv("MONGODB_URI"),
		MongoDB:  getEnv("MONGODB_DB", "wayfarer"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpire: jwtExpire,

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("EMAIL_FROM", os.Getenv("SMTP_USER")),
			FromName: getEnv("EMAIL_FROM_NAME", "Wayfarer"),
		},

		NewsletterCron:       getEnv("NEWSLETTER_CRON", defaultCron),
		NewsletterBatchDelay: batchDelay,

		CloudinaryURL: os.Getenv("CLOUDINARY_URL"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@wayfarer.travel"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),

		RateLimitMax:    getInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: window,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	current = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Get returns the loaded configuration. Set installs one directly, which
// tests and the CLI use instead of Load.
func Get() *Config {
	if current == nil {
		current = &Config{JWTSecret: os.Getenv("JWT_SECRET"), JWTExpire: 7 * 24 * time.Hour}
	}
	return current
}

func Set(cfg *Config) {
	current = cfg
}

// ParseDuration accepts Go durations plus a day suffix ("7d", "30d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
