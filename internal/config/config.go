// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	BlobLocal = "local"
	BlobS3    = "s3"
)

type Config struct {
	Port      int    `env:"MAYCAFE_PORT,default=8000"`
	DBPath    string `env:"MAYCAFE_DB_PATH,default=maycafe.db"`
	LogLevel  string `env:"MAYCAFE_LOG_LEVEL,default=info"`
	LogFormat string `env:"MAYCAFE_LOG_FORMAT,default=text"`

	UploadDir   string `env:"MAYCAFE_UPLOAD_DIR,default=."`
	BlobBackend string `env:"MAYCAFE_BLOB_BACKEND,default=local"`
	S3Endpoint  string `env:"MAYCAFE_S3_ENDPOINT"`
	S3Bucket    string `env:"MAYCAFE_S3_BUCKET"`
	S3Region    string `env:"MAYCAFE_S3_REGION,default=us-east-1"`
	S3AccessKey string `env:"MAYCAFE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"MAYCAFE_S3_SECRET_KEY"`

	// WebhookURL is the group chat bot endpoint, key included. Empty disables it.
	WebhookURL string `env:"MAYCAFE_WEBHOOK_URL"`

	// AdminPasswordHash is a bcrypt hash; see `maycafe admin-hash`.
	AdminPasswordHash string `env:"MAYCAFE_ADMIN_PASSWORD_HASH"`

	PostmarkToken string `env:"MAYCAFE_POSTMARK_TOKEN"`
	FromEmail     string `env:"MAYCAFE_FROM_EMAIL,default=noreply@maycafe.local"`
	BaseURL       string `env:"MAYCAFE_BASE_URL,default=http://localhost:8000"`

	// WSOrigins is a comma separated list of extra origins allowed on /ws.
	WSOrigins     string `env:"MAYCAFE_WS_ORIGINS"`
	SecureCookies bool   `env:"MAYCAFE_SECURE_COOKIES,default=false"`

	// RateLimitWindow is the period each throttled route budget covers.
	RateLimitWindow time.Duration `env:"MAYCAFE_RATE_LIMIT_WINDOW,default=1m"`
}

// Load reads envFile when it exists, then decodes the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.BlobBackend {
	case BlobLocal:
	case BlobS3:
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return errors.New("s3 blob backend needs MAYCAFE_S3_BUCKET, MAYCAFE_S3_ACCESS_KEY and MAYCAFE_S3_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}
	if c.RateLimitWindow < 0 {
		return fmt.Errorf("negative rate limit window %s", c.RateLimitWindow)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins splits WSOrigins into patterns for the websocket handshake.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.WSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
