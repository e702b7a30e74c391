package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind identifies which flow a token was minted for.
type Kind string

const (
	KindAccess            Kind = "access"
	KindRefresh           Kind = "refresh"
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
)

const minSecretBytes = 32

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong kinds,
	// and issuer/audience mismatches.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for correctly signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrKeyUnavailable wraps failures of the configured KeySource.
	ErrKeyUnavailable = errors.New("signing key unavailable")
)

// KeySource supplies the current HMAC signing secret.
type KeySource interface {
	SigningSecret(ctx context.Context) (string, error)
}

// Config holds token lifetimes and validation settings.
type Config struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	Issuer               string
	Audience             string
	Leeway               time.Duration
	MaxFutureIAT         time.Duration

	// Now overrides the clock used for iat/exp. Defaults to time.Now.
	Now func() time.Time
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID        string
	Email         string
	EmailVerified *bool
}

// Claims is the signed payload shared by every kind.
type Claims struct {
	Email         string `json:"email"`
	Type          Kind   `json:"typ"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token together with its identifiers.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies tokens. It is safe for concurrent use.
type Codec struct {
	config Config
	keys   KeySource
	now    func() time.Time
}

// NewCodec validates cfg and returns a codec reading secrets from keys.
func NewCodec(cfg Config, keys KeySource) (*Codec, error) {
	if keys == nil {
		return nil, errors.New("jwt key source required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.EmailVerificationTTL <= 0 || cfg.PasswordResetTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{config: cfg, keys: keys, now: now}, nil
}

// TTL returns the configured lifetime for kind, or zero for unknown kinds.
func (c *Codec) TTL(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return c.config.AccessTTL
	case KindRefresh:
		return c.config.RefreshTTL
	case KindEmailVerification:
		return c.config.EmailVerificationTTL
	case KindPasswordReset:
		return c.config.PasswordResetTTL
	default:
		return 0
	}
}

// Issue signs a token of the given kind for subject. Each token carries a
// random jti, so two tokens issued in the same second never collide.
func (c *Codec) Issue(ctx context.Context, kind Kind, subject Subject) (Issued, error) {
	ttl := c.TTL(kind)
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("unsupported token kind %q", kind)
	}
	if subject.UserID == "" {
		return Issued{}, errors.New("token subject required")
	}

	secret, err := c.secret(ctx)
	if err != nil {
		return Issued{}, err
	}

	now := c.now()
	id := uuid.NewString()
	claims := Claims{
		Email:         subject.Email,
		Type:          kind,
		EmailVerified: subject.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject.UserID,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	// NumericDate truncates to the second; report what was actually signed.
	return Issued{
		Token:     signed,
		ID:        id,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, expiry, issuer, audience, and that the token was
// minted for kind. Expired tokens yield ErrTokenExpired, everything else
// ErrInvalidToken. KeySource failures yield ErrKeyUnavailable.
func (c *Codec) Verify(ctx context.Context, token string, kind Kind) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	secret, err := c.secret(ctx)
	if err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(c.now().Add(c.config.MaxFutureIAT)) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (c *Codec) secret(ctx context.Context) ([]byte, error) {
	secret, err := c.keys.SigningSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("%w: secret shorter than %d bytes", ErrKeyUnavailable, minSecretBytes)
	}
	return []byte(secret), nil
}
