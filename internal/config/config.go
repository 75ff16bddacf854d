// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	Addr        string `mapstructure:"ADDR"`
	WebDir      string `mapstructure:"WEB_DIR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Env         string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	SessionSecret        string `mapstructure:"SESSION_SECRET"`
	SessionEncryptionKey string `mapstructure:"SESSION_ENCRYPTION_KEY"`
	SessionSecure        bool   `mapstructure:"SESSION_SECURE"`
	SessionBackend       string `mapstructure:"SESSION_BACKEND"`
	RedisURL             string `mapstructure:"REDIS_URL"`

	CSRFKey            string `mapstructure:"CSRF_KEY"`
	CSRFTrustedOrigins string `mapstructure:"CSRF_TRUSTED_ORIGINS"`

	MailFrom      string `mapstructure:"MAIL_FROM"`
	MailContactTo string `mapstructure:"MAIL_CONTACT_TO"`
	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPUsername  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword  string `mapstructure:"SMTP_PASSWORD"`

	OIDCIssuer       string `mapstructure:"OIDC_ISSUER"`
	OIDCClientID     string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `mapstructure:"OIDC_REDIRECT_URL"`

	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// Decoded keys, filled by Load.
	SessionKey      []byte `mapstructure:"-"`
	SessionBlockKey []byte `mapstructure:"-"`
	CSRFSecret      []byte `mapstructure:"-"`
	// Warnings lists insecure fallbacks taken while loading.
	Warnings []string `mapstructure:"-"`
}

const (
	BackendCookie = "cookie"
	BackendRedis  = "redis"
)

const keySize = 32

var defaults = map[string]any{
	"ADDR":                   ":8080",
	"WEB_DIR":                "web",
	"DATABASE_URL":           "",
	"APP_ENV":                "production",
	"LOG_LEVEL":              "info",
	"SESSION_SECRET":         "",
	"SESSION_ENCRYPTION_KEY": "",
	"SESSION_SECURE":         false,
	"SESSION_BACKEND":        BackendCookie,
	"REDIS_URL":              "",
	"CSRF_KEY":               "",
	"CSRF_TRUSTED_ORIGINS":   "",
	"MAIL_FROM":              "Bookstore <noreply@localhost>",
	"MAIL_CONTACT_TO":        "",
	"SMTP_HOST":              "",
	"SMTP_PORT":              587,
	"SMTP_USERNAME":          "",
	"SMTP_PASSWORD":          "",
	"OIDC_ISSUER":            "",
	"OIDC_CLIENT_ID":         "",
	"OIDC_CLIENT_SECRET":     "",
	"OIDC_REDIRECT_URL":      "",
	"LOGIN_RATE_PER_MINUTE":  10,
	"ADMIN_EMAIL":            "",
	"ADMIN_PASSWORD":         "",
}

// Load reads envFile when it exists, then the environment, which wins.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", envFile, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Development reports whether APP_ENV selects development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// SSOEnabled reports whether an OIDC issuer is configured.
func (c *Config) SSOEnabled() bool {
	return c.OIDCIssuer != ""
}

// TrustedOrigins splits CSRF_TRUSTED_ORIGINS.
func (c *Config) TrustedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CSRFTrustedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) finish() error {
	var err error
	if c.SessionKey, err = c.key("SESSION_SECRET", c.SessionSecret); err != nil {
		return err
	}
	if c.SessionBlockKey, err = c.key("SESSION_ENCRYPTION_KEY", c.SessionEncryptionKey); err != nil {
		return err
	}
	// AES-256 takes exactly 32 bytes.
	if len(c.SessionBlockKey) != keySize {
		return fmt.Errorf("config: SESSION_ENCRYPTION_KEY must decode to exactly %d bytes, got %d", keySize, len(c.SessionBlockKey))
	}
	if c.CSRFSecret, err = c.key("CSRF_KEY", c.CSRFKey); err != nil {
		return err
	}

	switch c.SessionBackend {
	case BackendCookie:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: SESSION_BACKEND must be %q or %q, got %q", BackendCookie, BackendRedis, c.SessionBackend)
	}

	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		return fmt.Errorf("config: SMTP_PORT out of range: %d", c.SMTPPort)
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("config: LOGIN_RATE_PER_MINUTE must be positive, got %d", c.LoginRatePerMinute)
	}
	if c.SSOEnabled() && (c.OIDCClientID == "" || c.OIDCRedirectURL == "") {
		return errors.New("config: OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER is set")
	}
	return nil
}

// key decodes a base64 secret of at least 32 bytes. An empty value falls back
// to random bytes, which do not survive a restart.
func (c *Config) key(name, encoded string) ([]byte, error) {
	if encoded == "" {
		b := make([]byte, keySize)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("config: generate %s: %w", name, err)
		}
		c.Warnings = append(c.Warnings, name+" is not set; using a random key, sessions will not survive a restart")
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", name, err)
	}
	if len(b) < keySize {
		return nil, fmt.Errorf("config: %s must decode to at least %d bytes, got %d", name, keySize, len(b))
	}
	return b, nil
}
