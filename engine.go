package sessionauth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"sync"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/limiters"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
)

// resetLimiter is a rolling window keyed by email fingerprint.
type resetLimiter interface {
	Allow(ctx context.Context, fingerprint string) (limiters.ResetDecision, error)
}

// Engine runs the authentication and session lifecycle. Build one with
// New().With...().Build(); the zero value is not usable.
type Engine struct {
	config       Config
	store        AccountStore
	rotator      RefreshTokenRotator
	codec        *jwt.Codec
	hasher       *password.Hasher
	lockout      limiters.LockoutPolicy
	resetLimiter resetLimiter
	mailer       EmailSender
	idp          IdentityProvider
	states       OAuthStateStore
	closeStates  func()
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Close stops background work owned by the engine: the audit dispatcher
// and an engine-created OAuth state store.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.closeStates != nil {
		e.closeStates()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditStats reports delivered, dropped, and panicked audit events.
func (e *Engine) AuditStats() AuditStats {
	if e == nil || e.audit == nil {
		return AuditStats{}
	}
	return e.audit.Stats()
}

// MetricsSnapshot returns the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

// issueSession signs an access/refresh pair for user and persists the
// refresh token. Nothing is persisted unless both tokens were signed.
func (e *Engine) issueSession(ctx context.Context, user *User) (TokenPair, error) {
	access, refresh, err := e.signPair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := e.store.CreateRefreshToken(ctx, user.ID, refresh.Token, refresh.ExpiresAt); err != nil {
		return TokenPair{}, serverError("persist refresh token", err)
	}

	return pairOf(access, refresh), nil
}

func (e *Engine) signPair(ctx context.Context, user *User) (jwt.Issued, jwt.Issued, error) {
	subject := subjectOf(user)

	access, err := e.codec.Issue(ctx, jwt.KindAccess, subject)
	if err != nil {
		return jwt.Issued{}, jwt.Issued{}, serverError("sign access token", err)
	}
	refresh, err := e.codec.Issue(ctx, jwt.KindRefresh, subject)
	if err != nil {
		return jwt.Issued{}, jwt.Issued{}, serverError("sign refresh token", err)
	}
	return access, refresh, nil
}

func pairOf(access, refresh jwt.Issued) TokenPair {
	return TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
}

func subjectOf(user *User) jwt.Subject {
	verified := user.EmailVerified
	return jwt.Subject{UserID: user.ID, Email: user.Email, EmailVerified: &verified}
}

// verifyToken maps codec failures onto engine errors.
func (e *Engine) verifyToken(ctx context.Context, token string, kind jwt.Kind) (*jwt.Claims, error) {
	claims, err := e.codec.Verify(ctx, token, kind)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrKeyUnavailable):
		return nil, serverError("verify "+string(kind)+" token", err)
	default:
		return nil, ErrInvalidToken
	}
}

// checkOneTimeRecord applies the shared rules for reset and verification
// records: present, unused, owned by the token subject, unexpired.
func (e *Engine) checkOneTimeRecord(rec *OneTimeTokenRecord, subject string) error {
	if rec == nil || rec.Used || rec.UserID != subject {
		return ErrInvalidToken
	}
	if !e.now().Before(rec.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

func (e *Engine) validatePassword(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return errors.Join(ErrValidation, errors.New("password too short"))
	}
	if len(pw) > e.config.Password.MaxLength {
		return errors.Join(ErrValidation, errors.New("password too long"))
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return errors.Join(ErrValidation, errors.New("invalid email"))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.Join(ErrValidation, errors.New("invalid email"))
	}
	return nil
}

// burnHash runs one verification against a throwaway hash so unknown
// emails cost the same as wrong passwords.
func (e *Engine) burnHash(pw string) {
	e.dummyOnce.Do(func() {
		if h, err := e.hasher.Hash("dummy-password-for-timing"); err == nil {
			e.dummyHash = h
		}
	})
	if e.dummyHash != "" {
		_, _ = e.hasher.Verify(pw, e.dummyHash)
	}
}

func (e *Engine) sendMail(ctx context.Context, msg EmailMessage) error {
	if e.mailer == nil {
		return errors.New("email sender not configured")
	}
	return e.mailer.Send(ctx, msg)
}

func (e *Engine) warn(ctx context.Context, op string, err error, attrs ...any) {
	args := append([]any{"op", op, "error", err}, attrs...)
	e.logger.WarnContext(ctx, "best-effort step failed", args...)
}

func emailFingerprint(email string) string {
	return internal.HashToken(email)
}
