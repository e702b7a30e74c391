package sessionauth

import (
	"errors"
	"time"
)

// Config controls every tunable of the engine. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	OAuth             OAuthConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	Issuer               string
	Audience             string
	Leeway               time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters (Memory in KiB) and the length
// policy applied to new passwords.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT / RESET / VERIFICATION
====================================
*/

type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// PasswordResetConfig limits reset requests to MaxRequests per rolling
// Window. LinkURL is prefixed to the token in the outbound mail.
type PasswordResetConfig struct {
	MaxRequests int
	Window      time.Duration
	LinkURL     string
	Subject     string
	RedisPrefix string
}

type EmailVerificationConfig struct {
	SendOnSignup bool
	LinkURL      string
	Subject      string
}

/*
====================================
OAUTH CONFIG
====================================
*/

type OAuthConfig struct {
	StateTTL      time.Duration
	SweepInterval time.Duration
}

/*
====================================
AUDIT / METRICS
====================================
*/

// AuditConfig sizes the async dispatcher. DeliveryTimeout bounds each
// sink call; zero means 5s.
type AuditConfig struct {
	Enabled         bool
	BufferSize      int
	DropIfFull      bool
	DeliveryTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the reference policy: 15m access, 7d refresh,
// 5 failures lock for 15m, 3 reset requests per hour.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           7 * 24 * time.Hour,
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     time.Hour,
			Issuer:               "sessionauth",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			MaxRequests: 3,
			Window:      time.Hour,
			Subject:     "Reset your password",
			RedisPrefix: "sapr",
		},
		EmailVerification: EmailVerificationConfig{
			SendOnSignup: true,
			Subject:      "Verify your email address",
		},
		OAuth: OAuthConfig{
			StateTTL:      10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrValidation.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.EmailVerificationTTL <= 0 {
		return errors.New("JWT EmailVerificationTTL must be > 0")
	}
	if c.JWT.PasswordResetTTL <= 0 {
		return errors.New("JWT PasswordResetTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Password Reset
	if c.PasswordReset.MaxRequests < 1 {
		return errors.New("PasswordReset MaxRequests must be >= 1")
	}
	if c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset Window must be > 0")
	}

	// OAuth
	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}
	if c.OAuth.SweepInterval <= 0 {
		return errors.New("OAuth SweepInterval must be > 0")
	}

	// Audit
	if c.Audit.DeliveryTimeout < 0 {
		return errors.New("Audit DeliveryTimeout must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
