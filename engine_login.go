package sessionauth

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	"github.com/MrEthical07/sessionauth/internal/limiters"
)

// Login authenticates email and password and opens a new session.
//
// Unknown emails fail exactly like a wrong password on a fresh account. A
// locked account fails with *AccountLockedError before the password is
// checked. A wrong password increments the attempt counter and, at the
// configured maximum, locks the account. A correct password clears the
// counter and returns a new access/refresh pair.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricLoginLatency, start)

	email = internal.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, e.loginFailed(ctx, "", ErrValidation)
	}

	user, err := e.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, e.loginFailed(ctx, "", serverError("find user", err))
	}
	if user == nil {
		e.burnHash(password)
		return nil, e.loginFailed(ctx, "", &InvalidCredentialsError{AttemptsRemaining: e.config.Lockout.MaxAttempts - 1})
	}

	now := e.now()
	if user.IsLocked(now) {
		e.metricInc(MetricLoginLocked)
		return nil, e.loginFailed(ctx, user.ID, &AccountLockedError{LockedUntil: *user.LockedUntil})
	}

	if user.PasswordHash == nil {
		return nil, e.loginFailed(ctx, user.ID, ErrInvalidLoginMethod)
	}

	ok, err := e.hasher.Verify(password, *user.PasswordHash)
	if err != nil {
		return nil, e.loginFailed(ctx, user.ID, serverError("verify password", err))
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, user, now)
	}

	if limiters.NeedsReset(user.LoginAttempts, user.LockedUntil) {
		if err := e.store.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, e.loginFailed(ctx, user.ID, serverError("reset login attempts", err))
		}
		user.LoginAttempts = 0
		user.LockedUntil = nil
	}

	e.upgradeHash(ctx, user, password)

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, e.loginFailed(ctx, user.ID, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})

	return &LoginResult{TokenPair: pair, User: user.Summary()}, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, user *User, now time.Time) error {
	f, err := e.store.RecordLoginFailure(ctx, user.ID, now, e.lockout)
	if err != nil {
		return e.loginFailed(ctx, user.ID, serverError("record login failure", err))
	}

	if !limiters.Locked(f.LockedUntil, now) {
		remaining := e.lockout.MaxAttempts - f.Attempts
		if remaining < 0 {
			remaining = 0
		}
		return e.loginFailed(ctx, user.ID, &InvalidCredentialsError{AttemptsRemaining: remaining})
	}

	e.metricInc(MetricLoginLocked)
	if !f.AlreadyLocked {
		e.emitAudit(ctx, auditEventAccountLocked, true, user.ID, nil, func() map[string]string {
			return map[string]string{
				"attempts":     strconv.Itoa(f.Attempts),
				"locked_until": f.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
	}
	return e.loginFailed(ctx, user.ID, &AccountLockedError{LockedUntil: *f.LockedUntil})
}

func (e *Engine) loginFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, err, nil)
	return err
}

// upgradeHash re-hashes a correct password stored with outdated parameters
// or with legacy bcrypt. Failures are logged and never block the login.
func (e *Engine) upgradeHash(ctx context.Context, user *User, password string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsRehash(*user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.warn(ctx, "rehash password", err, "user_id", user.ID)
		return
	}
	if err := e.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		e.warn(ctx, "store upgraded hash", err, "user_id", user.ID)
		return
	}
	user.PasswordHash = &hash
}
