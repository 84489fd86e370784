// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/admin"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/logger"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/mail"
)

// Config is the root configuration structure.
type Config struct {
	Server   Server           `yaml:"server"`
	Database Database         `yaml:"database"`
	Auth     Auth             `yaml:"auth"`
	SMTP     mail.SMTPConfig  `yaml:"smtp"`
	Limits   admin.RateLimits `yaml:"rate_limits"`
	Logging  logger.Config    `yaml:"logging"`
}

type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLS          TLS           `yaml:"tls"`
	// BaseURL is the absolute URL prefix embedded in outbound email links.
	BaseURL string `yaml:"base_url"`
}

type TLS struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Auth struct {
	// JWTSecret signs bearer tokens. Supplied out of band; the JWT_SECRET
	// environment variable overrides whatever the file holds.
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenExpiry      time.Duration `yaml:"token_expiry"`
	ResetTTL         time.Duration `yaml:"reset_ttl"`
	VerificationTTL  time.Duration `yaml:"verification_ttl"`
	LockoutThreshold int           `yaml:"lockout_threshold"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	CSRFCookieMaxAge int           `yaml:"csrf_cookie_max_age"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("https://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Database.Path == "" {
		c.Database.Path = "truegate.db"
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 12 * time.Hour
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = time.Hour
	}
	if c.Auth.VerificationTTL == 0 {
		c.Auth.VerificationTTL = 24 * time.Hour
	}
	if c.Auth.LockoutThreshold == 0 {
		c.Auth.LockoutThreshold = 5
	}
	if c.Auth.CSRFCookieMaxAge == 0 {
		c.Auth.CSRFCookieMaxAge = 3600
	}
	if c.Limits.CSRFPerSecond == 0 {
		c.Limits.CSRFPerSecond = 5
	}
	if c.Limits.CSRFBurst == 0 {
		c.Limits.CSRFBurst = 10
	}
	if c.Limits.LoginPerSecond == 0 {
		c.Limits.LoginPerSecond = 2
	}
	if c.Limits.LoginBurst == 0 {
		c.Limits.LoginBurst = 5
	}
}
