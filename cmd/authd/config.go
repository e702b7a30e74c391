package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/sessionauth"
)

// serviceConfig is read from AUTHD_* environment variables, optionally
// seeded from a .env file.
type serviceConfig struct {
	Addr            string        `env:"AUTHD_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"AUTHD_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"AUTHD_LOG_LEVEL"        envDefault:"info"`

	DBDriver string `env:"AUTHD_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"AUTHD_DB_DSN"    envDefault:"file:authd.db?_pragma=busy_timeout(5000)"`

	RedisAddr     string `env:"AUTHD_REDIS_ADDR"`
	RedisPassword string `env:"AUTHD_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHD_REDIS_DB"`

	SigningSecret     string        `env:"AUTHD_SIGNING_SECRET"`
	SigningSecretFile string        `env:"AUTHD_SIGNING_SECRET_FILE"`
	SecretCacheTTL    time.Duration `env:"AUTHD_SECRET_CACHE_TTL" envDefault:"5m"`

	AccessTTL  time.Duration `env:"AUTHD_ACCESS_TTL"  envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTHD_REFRESH_TTL" envDefault:"168h"`
	Issuer     string        `env:"AUTHD_JWT_ISSUER"`
	Audience   string        `env:"AUTHD_JWT_AUDIENCE"`

	VerifyLinkURL string `env:"AUTHD_VERIFY_LINK_URL"`
	ResetLinkURL  string `env:"AUTHD_RESET_LINK_URL"`

	SMTPHost     string `env:"AUTHD_SMTP_HOST"`
	SMTPPort     int    `env:"AUTHD_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"AUTHD_SMTP_USERNAME"`
	SMTPPassword string `env:"AUTHD_SMTP_PASSWORD"`
	SMTPFrom     string `env:"AUTHD_SMTP_FROM"`

	GoogleClientID     string `env:"AUTHD_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"AUTHD_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"AUTHD_GOOGLE_REDIRECT_URL"`

	KafkaBrokers []string `env:"AUTHD_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"AUTHD_KAFKA_TOPIC"   envDefault:"auth-audit"`
	AuditStdout  bool     `env:"AUTHD_AUDIT_STDOUT"`

	MetricsEnabled bool `env:"AUTHD_METRICS_ENABLED" envDefault:"true"`
	LatencyEnabled bool `env:"AUTHD_LATENCY_HISTOGRAMS"`
}

// loadConfig reads envFile (missing is fine) and then the environment.
func loadConfig(envFile string) (serviceConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return serviceConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg serviceConfig
	if err := env.Parse(&cfg); err != nil {
		return serviceConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

func (c serviceConfig) validate() error {
	if c.SigningSecret == "" && c.SigningSecretFile == "" {
		return errors.New("AUTHD_SIGNING_SECRET or AUTHD_SIGNING_SECRET_FILE is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("AUTHD_DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.GoogleClientID != "" && c.GoogleRedirectURL == "" {
		return errors.New("AUTHD_GOOGLE_REDIRECT_URL is required with AUTHD_GOOGLE_CLIENT_ID")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("AUTHD_SMTP_FROM is required with AUTHD_SMTP_HOST")
	}
	return nil
}

// engineConfig overlays service settings on the library defaults.
func (c serviceConfig) engineConfig() sessionauth.Config {
	cfg := sessionauth.DefaultConfig()
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience
	cfg.EmailVerification.LinkURL = c.VerifyLinkURL
	cfg.PasswordReset.LinkURL = c.ResetLinkURL
	cfg.Audit.Enabled = len(c.KafkaBrokers) > 0 || c.AuditStdout
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.LatencyEnabled
	return cfg
}
