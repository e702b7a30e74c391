package sessionauth

import "context"

// ChangePassword replaces the password of an authenticated user after
// checking the current one. All refresh tokens are revoked, so the caller
// has to log in again.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) (*ChangePasswordResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" || current == "" {
		return nil, e.changeFailed(ctx, userID, ErrValidation)
	}
	if err := e.validatePassword(next); err != nil {
		return nil, e.changeFailed(ctx, userID, err)
	}

	user, err := e.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, e.changeFailed(ctx, userID, serverError("find user", err))
	}
	if user == nil {
		return nil, e.changeFailed(ctx, userID, ErrUserNotFound)
	}
	if user.PasswordHash == nil {
		return nil, e.changeFailed(ctx, userID, ErrInvalidLoginMethod)
	}

	ok, err := e.hasher.Verify(current, *user.PasswordHash)
	if err != nil {
		return nil, e.changeFailed(ctx, userID, serverError("verify password", err))
	}
	if !ok {
		return nil, e.changeFailed(ctx, userID, ErrInvalidCredentials)
	}
	if current == next {
		return nil, e.changeFailed(ctx, userID, ErrValidation)
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return nil, e.changeFailed(ctx, userID, serverError("hash password", err))
	}
	if err := e.store.UpdatePassword(ctx, userID, hash); err != nil {
		return nil, e.changeFailed(ctx, userID, serverError("update password", err))
	}
	if err := e.store.RevokeAllUserTokens(ctx, userID); err != nil {
		return nil, e.changeFailed(ctx, userID, serverError("revoke all refresh tokens", err))
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, userID, nil, nil)
	return &ChangePasswordResult{ReloginRequired: true}, nil
}

func (e *Engine) changeFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordChangeFailure)
	e.emitAudit(ctx, auditEventPasswordChange, false, userID, err, nil)
	return err
}
