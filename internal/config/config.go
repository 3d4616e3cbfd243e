package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings for the chat service. Values are
// read from CHAT_* environment variables and may be overridden by
// command line flags.
type Config struct {
	ServerAddr     string        `envconfig:"SERVER_ADDR" default:"localhost:8000"`
	DatabaseDSN    string        `envconfig:"DATABASE_DSN"`
	SigningSecret  string        `envconfig:"SIGNING_SECRET"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	LookupTimeout  time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"5s"`

	// SigningKey is the decoded form of SigningSecret.
	SigningKey []byte `ignored:"true"`
}

// Overrides carries non-empty flag values which take precedence over
// the environment.
type Overrides struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningSecret  string
	AllowedOrigins []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func New(o Overrides) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("chat", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if o.ServerAddr != "" {
		cfg.ServerAddr = o.ServerAddr
	}
	if o.DatabaseDSN != "" {
		cfg.DatabaseDSN = o.DatabaseDSN
	}
	if o.SigningSecret != "" {
		cfg.SigningSecret = o.SigningSecret
	}
	if len(o.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = o.AllowedOrigins
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if cfg.LookupTimeout <= 0 {
		return nil, fmt.Errorf("lookup timeout must be positive")
	}

	signingKey, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = signingKey

	return &cfg, nil
}
