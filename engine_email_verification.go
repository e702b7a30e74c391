package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/internal"
	"github.com/MrEthical07/sessionauth/jwt"
)

// VerifyEmail consumes a verification token and marks the account's email
// verified. The token is consumed even when the email was already verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	claims, err := e.verifyToken(ctx, token, jwt.KindEmailVerification)
	if err != nil {
		return e.verificationFailed(ctx, "", err)
	}

	rec, err := e.store.FindEmailVerification(ctx, token)
	if err != nil {
		return e.verificationFailed(ctx, claims.Subject, serverError("find email verification", err))
	}
	if err := e.checkOneTimeRecord(rec, claims.Subject); err != nil {
		return e.verificationFailed(ctx, claims.Subject, err)
	}

	user, err := e.store.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return e.verificationFailed(ctx, rec.UserID, serverError("find user", err))
	}
	if user == nil {
		return e.verificationFailed(ctx, rec.UserID, ErrUserNotFound)
	}

	if err := e.store.MarkEmailVerificationUsed(ctx, token); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return e.verificationFailed(ctx, user.ID, ErrInvalidToken)
		}
		return e.verificationFailed(ctx, user.ID, serverError("mark email verification used", err))
	}
	if user.EmailVerified {
		return e.verificationFailed(ctx, user.ID, ErrEmailAlreadyVerified)
	}
	if err := e.store.MarkEmailVerified(ctx, user.ID); err != nil {
		return e.verificationFailed(ctx, user.ID, serverError("mark email verified", err))
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationCheck, true, user.ID, nil, nil)
	return nil
}

// ResendVerification mails a fresh verification token. Unknown emails
// succeed without sending anything.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	email = internal.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := e.store.FindUserByEmail(ctx, email)
	if err != nil {
		return serverError("find user", err)
	}
	if user == nil {
		return nil
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	if err := e.sendVerification(ctx, user); err != nil {
		return serverError("send verification", err)
	}
	return nil
}

// sendVerification issues, persists and mails a verification token.
func (e *Engine) sendVerification(ctx context.Context, user *User) error {
	issued, err := e.codec.Issue(ctx, jwt.KindEmailVerification, subjectOf(user))
	if err != nil {
		return err
	}
	if err := e.store.CreateEmailVerification(ctx, user.ID, issued.Token, issued.ExpiresAt); err != nil {
		return err
	}

	msg := EmailMessage{
		To:      user.Email,
		Subject: e.config.EmailVerification.Subject,
		Body:    linkBody("Confirm your email address with this link:", e.config.EmailVerification.LinkURL, issued.Token),
	}
	if err := e.sendMail(ctx, msg); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventEmailVerificationSent, true, user.ID, nil, func() map[string]string {
		return map[string]string{"jti": issued.ID}
	})
	return nil
}

func (e *Engine) verificationFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationCheck, false, userID, err, nil)
	return err
}
