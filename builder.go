package sessionauth

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/limiters"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/oauthstate"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     AccountStore
	secrets   SecretProvider
	mailer    EmailSender
	idp       IdentityProvider
	states    OAuthStateStore
	auditSink AuditSink
	logger    *slog.Logger
	clock     Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis rolling-window limiter for password reset
// requests. Without it the engine counts recent resets in the AccountStore.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithSecretProvider(p SecretProvider) *Builder {
	b.secrets = p
	return b
}

func (b *Builder) WithEmailSender(s EmailSender) *Builder {
	b.mailer = s
	return b
}

func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.idp = p
	return b
}

// WithOAuthStateStore overrides the in-memory state store the engine would
// otherwise create. The caller owns its lifecycle.
func (b *Builder) WithOAuthStateStore(s OAuthStateStore) *Builder {
	b.states = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates configuration and collaborators and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.secrets == nil {
		return nil, errors.New("secret provider required")
	}

	now := time.Now
	if b.clock != nil {
		now = b.clock
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- TOKENS --------
	codec, err := jwt.NewCodec(jwt.Config{
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.JWT.RefreshTTL,
		EmailVerificationTTL: cfg.JWT.EmailVerificationTTL,
		PasswordResetTTL:     cfg.JWT.PasswordResetTTL,
		Issuer:               cfg.JWT.Issuer,
		Audience:             cfg.JWT.Audience,
		Leeway:               cfg.JWT.Leeway,
		Now:                  now,
	}, b.secrets)
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		store:   b.store,
		codec:   codec,
		hasher:  hasher,
		mailer:  b.mailer,
		idp:     b.idp,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
		lockout: limiters.LockoutPolicy{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Duration:    cfg.Lockout.Duration,
		},
	}

	if r, ok := b.store.(RefreshTokenRotator); ok {
		e.rotator = r
	}

	resetCfg := limiters.PasswordResetConfig{
		MaxRequests: cfg.PasswordReset.MaxRequests,
		Window:      cfg.PasswordReset.Window,
		KeyPrefix:   cfg.PasswordReset.RedisPrefix,
		Now:         now,
	}
	if b.redis != nil {
		e.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, resetCfg)
	} else {
		e.resetLimiter = limiters.NewMemoryResetLimiter(resetCfg)
	}

	// -------- OAUTH STATE --------
	switch {
	case b.states != nil:
		e.states = b.states
	case b.idp != nil:
		s := oauthstate.New(oauthstate.Config{
			TTL:           cfg.OAuth.StateTTL,
			SweepInterval: cfg.OAuth.SweepInterval,
			Now:           now,
		})
		e.states = s
		e.closeStates = s.Close
	}

	// -------- AUDIT --------
	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:         cfg.Audit.Enabled,
		BufferSize:      cfg.Audit.BufferSize,
		DropIfFull:      cfg.Audit.DropIfFull,
		DeliveryTimeout: cfg.Audit.DeliveryTimeout,
	}, b.auditSink)

	b.built = true
	return e, nil
}
