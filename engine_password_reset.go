package sessionauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	"github.com/MrEthical07/sessionauth/jwt"
)

// PasswordResetRequestedMessage is returned by RequestPasswordReset whether
// or not the email belongs to an account.
const PasswordResetRequestedMessage = "If an account exists for that email, a password reset link has been sent."

// RequestPasswordReset issues a reset token for email and mails it.
//
// The result is identical for known and unknown emails. Requests are
// limited per email fingerprint before the account is looked up, in Redis
// when configured and in process memory otherwise.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	email = internal.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	fp := emailFingerprint(email)

	d, err := e.resetLimiter.Allow(ctx, fp)
	if err != nil {
		return "", serverError("password reset limiter", err)
	}
	if !d.Allowed {
		return "", e.resetRateLimited(ctx, fp, d.RetryAfter)
	}

	user, err := e.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", serverError("find user", err)
	}
	if user == nil {
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
			return map[string]string{"email_fp": fp}
		})
		return PasswordResetRequestedMessage, nil
	}

	issued, err := e.codec.Issue(ctx, jwt.KindPasswordReset, subjectOf(user))
	if err != nil {
		return "", serverError("sign password reset token", err)
	}
	if err := e.store.CreatePasswordReset(ctx, user.ID, issued.Token, issued.ExpiresAt); err != nil {
		return "", serverError("persist password reset", err)
	}

	msg := EmailMessage{
		To:      user.Email,
		Subject: e.config.PasswordReset.Subject,
		Body:    linkBody("Use this link to reset your password:", e.config.PasswordReset.LinkURL, issued.Token),
	}
	if err := e.sendMail(ctx, msg); err != nil {
		e.warn(ctx, "send password reset", err, "user_id", user.ID)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, nil, func() map[string]string {
		return map[string]string{"email_fp": fp, "jti": issued.ID}
	})
	return PasswordResetRequestedMessage, nil
}

func (e *Engine) resetRateLimited(ctx context.Context, fp string, retryAfter time.Duration) error {
	e.metricInc(MetricPasswordResetRateLimited)
	e.emitRateLimit(ctx, "password_reset", func() map[string]string {
		return map[string]string{"email_fp": fp}
	})
	return &TooManyRequestsError{RetryAfter: retryAfter}
}

// ResetPassword consumes a reset token and sets a new password. Every
// refresh token of the account is revoked and any lockout is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.validatePassword(newPassword); err != nil {
		return e.resetConfirmFailed(ctx, "", err)
	}

	claims, err := e.verifyToken(ctx, token, jwt.KindPasswordReset)
	if err != nil {
		return e.resetConfirmFailed(ctx, "", err)
	}

	rec, err := e.store.FindPasswordReset(ctx, token)
	if err != nil {
		return e.resetConfirmFailed(ctx, claims.Subject, serverError("find password reset", err))
	}
	if err := e.checkOneTimeRecord(rec, claims.Subject); err != nil {
		return e.resetConfirmFailed(ctx, claims.Subject, err)
	}

	user, err := e.store.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return e.resetConfirmFailed(ctx, rec.UserID, serverError("find user", err))
	}
	if user == nil {
		return e.resetConfirmFailed(ctx, rec.UserID, ErrUserNotFound)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.resetConfirmFailed(ctx, user.ID, serverError("hash password", err))
	}

	// Claiming the token first makes concurrent resets with one token
	// single-winner. If a write below fails the token stays spent and the
	// old password stays in place; the user has to request a new link.
	if err := e.store.MarkPasswordResetUsed(ctx, token); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return e.resetConfirmFailed(ctx, user.ID, ErrInvalidToken)
		}
		return e.resetConfirmFailed(ctx, user.ID, serverError("mark password reset used", err))
	}
	if err := e.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return e.resetConfirmFailed(ctx, user.ID, serverError("update password", err))
	}
	if err := e.store.RevokeAllUserTokens(ctx, user.ID); err != nil {
		return e.resetConfirmFailed(ctx, user.ID, serverError("revoke all refresh tokens", err))
	}
	if user.LoginAttempts != 0 || user.LockedUntil != nil {
		if err := e.store.ResetLoginAttempts(ctx, user.ID); err != nil {
			e.warn(ctx, "clear lockout after reset", err, "user_id", user.ID)
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, nil, nil)
	return nil
}

func (e *Engine) resetConfirmFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, err, nil)
	return err
}

func linkBody(intro, link, token string) string {
	if link == "" {
		return intro + "\n\n" + token + "\n"
	}
	return intro + "\n\n" + link + token + "\n"
}
