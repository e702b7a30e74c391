package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/internal"
)

// Signup creates a password account. When EmailVerification.SendOnSignup
// is set a verification mail is sent; a delivery failure is logged and
// does not fail the signup.
func (e *Engine) Signup(ctx context.Context, email, password string) (*UserSummary, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = internal.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := e.validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, serverError("hash password", err)
	}

	user, err := e.store.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: &hash,
	})
	if err != nil {
		if errors.Is(err, ErrRecordExists) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", ErrAlreadyExists, func() map[string]string {
				return map[string]string{"email_fp": emailFingerprint(email)}
			})
			return nil, ErrAlreadyExists
		}
		return nil, serverError("create user", err)
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, user.ID, nil, nil)

	if e.config.EmailVerification.SendOnSignup {
		if err := e.sendVerification(ctx, user); err != nil {
			e.warn(ctx, "send verification on signup", err, "user_id", user.ID)
		}
	}

	summary := user.Summary()
	return &summary, nil
}
