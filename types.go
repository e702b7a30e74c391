package sessionauth

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/limiters"
)

// User is an account as persisted by the AccountStore.
//
// A nil PasswordHash means the account was created through OAuth and can
// only sign in that way. A LockedUntil in the past means unlocked.
type User struct {
	ID            string
	Email         string
	PasswordHash  *string
	EmailVerified bool
	LoginAttempts int
	LockedUntil   *time.Time
	GoogleID      *string
	Name          string
	PictureURL    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLocked reports whether password login is suspended at now.
func (u *User) IsLocked(now time.Time) bool {
	return limiters.Locked(u.LockedUntil, now)
}

// Summary strips credential state for returning to callers.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		PictureURL:    u.PictureURL,
	}
}

// UserSummary is the public view of a user.
type UserSummary struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	PictureURL    string `json:"picture_url,omitempty"`
}

// RefreshTokenRecord is a persisted refresh token. It is usable only while
// not revoked and not past ExpiresAt.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

func (r *RefreshTokenRecord) Usable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// LockoutPolicy locks an account for Duration once MaxAttempts consecutive
// failures accumulate.
type LockoutPolicy = limiters.LockoutPolicy

// LoginFailure is the account state after a failed login was recorded.
type LoginFailure struct {
	Attempts    int
	LockedUntil *time.Time
	// AlreadyLocked means another attempt locked the account first and this
	// one was not counted.
	AlreadyLocked bool
}

// OneTimeTokenRecord backs password resets and email verifications. Once
// Used is set it stays set.
type OneTimeTokenRecord struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

type (
	PasswordResetRecord     = OneTimeTokenRecord
	EmailVerificationRecord = OneTimeTokenRecord
)

// CreateUserInput is what the engine passes to AccountStore.CreateUser.
// Email is already normalized.
type CreateUserInput struct {
	Email         string
	PasswordHash  *string
	EmailVerified bool
	GoogleID      *string
	Name          string
	PictureURL    string
}

// ProfileUpdate carries provider-synced fields. Nil fields are left as is.
type ProfileUpdate struct {
	Name          *string
	PictureURL    *string
	GoogleID      *string
	EmailVerified *bool
}

// AccountStore persists users and their tokens.
//
// Find methods return (nil, nil) when nothing matches. Mutations of rows
// that do not exist return ErrRecordNotFound; unique conflicts return
// ErrRecordExists. Any other error is treated as an outage.
type AccountStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	// RecordLoginFailure counts one failed login at now as a single atomic
	// step. An expired lock restarts the count, and the failure that reaches
	// policy.MaxAttempts sets LockedUntil to now plus policy.Duration. While
	// a lock is in force nothing changes and AlreadyLocked is reported.
	RecordLoginFailure(ctx context.Context, id string, now time.Time, policy LockoutPolicy) (*LoginFailure, error)
	ResetLoginAttempts(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error

	CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) (*RefreshTokenRecord, error)
	FindRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID string) error

	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindPasswordReset(ctx context.Context, token string) (*PasswordResetRecord, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	CreateEmailVerification(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindEmailVerification(ctx context.Context, token string) (*EmailVerificationRecord, error)
	MarkEmailVerificationUsed(ctx context.Context, token string) error
}

// RefreshTokenRotator is implemented by stores that can revoke the old
// token and insert the new one in a single transaction. The revoke must be
// conditional on the old token still being live; if it is not, the store
// returns ErrRecordNotFound and inserts nothing.
type RefreshTokenRotator interface {
	RotateRefreshToken(ctx context.Context, oldToken, userID, newToken string, expiresAt time.Time) (*RefreshTokenRecord, error)
}

// SecretProvider supplies the HMAC signing secret.
type SecretProvider interface {
	SigningSecret(ctx context.Context) (string, error)
}

// EmailMessage is a single outbound mail.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// ProviderTokens is the result of an authorization-code exchange.
type ProviderTokens struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int
}

// ProviderIdentity is the verified content of a provider ID token.
type ProviderIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Nonce         string
}

// IdentityProvider is an OAuth/OpenID Connect provider such as Google.
type IdentityProvider interface {
	AuthCodeURL(state, nonce string) string
	ExchangeCode(ctx context.Context, code string) (ProviderTokens, error)
	VerifyIdentityToken(ctx context.Context, idToken string) (ProviderIdentity, error)
}

// OAuthStateStore holds state/nonce pairs between authorization redirect
// and callback. Consume must delete the entry whether or not it is valid.
type OAuthStateStore interface {
	Put(state, nonce string) error
	Consume(state string) (nonce string, ok bool)
}

// TokenPair is an access token with its refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is returned by Login and CompleteOAuthCallback.
type LoginResult struct {
	TokenPair
	User UserSummary `json:"user"`
	// Created is set when an OAuth callback created a new local account.
	Created bool `json:"created,omitempty"`
}

// AccessClaims is what ValidateAccess returns for a good access token.
type AccessClaims struct {
	UserID        string
	Email         string
	EmailVerified bool
	TokenID       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

type ChangePasswordResult struct {
	ReloginRequired bool `json:"relogin_required"`
}

// OAuthStart is returned by OAuthAuthorizationURL.
type OAuthStart struct {
	URL   string `json:"url"`
	State string `json:"state"`
	Nonce string `json:"-"`
}

// OAuthCallback carries the query parameters of the provider redirect.
// Nonce is optional; when set it must match the one stored with State.
type OAuthCallback struct {
	Code  string
	State string
	Nonce string
}

type (
	AuditEvent     = internalaudit.Event
	AuditSink      = internalaudit.Sink
	AuditSinkFunc  = internalaudit.SinkFunc
	AuditMultiSink = internalaudit.MultiSink
	AuditStats     = internalaudit.Stats
	ChannelSink    = internalaudit.ChannelSink
)

var (
	// NewJSONWriterSink returns an AuditSink writing one JSON object per line.
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
	NewChannelSink    = internalaudit.NewChannelSink
	// AuditTypeFilter forwards only the named event types to next.
	AuditTypeFilter = internalaudit.TypeFilter
)

// Clock is injected for tests. Defaults to time.Now.
type Clock func() time.Time
