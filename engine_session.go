package sessionauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionauth/jwt"
)

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same step, so each refresh token works exactly once.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricRefreshLatency, start)

	claims, err := e.verifyToken(ctx, refreshToken, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			e.revokeQuietly(ctx, refreshToken)
		}
		return nil, e.refreshFailed(ctx, "", err)
	}

	rec, err := e.store.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, claims.Subject, serverError("find refresh token", err))
	}
	if rec == nil {
		return nil, e.refreshFailed(ctx, claims.Subject, ErrInvalidToken)
	}
	if !rec.Usable(e.now()) {
		if rec.Revoked {
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.UserID, ErrInvalidToken, func() map[string]string {
				return map[string]string{"jti": claims.ID}
			})
			return nil, e.refreshFailed(ctx, rec.UserID, ErrInvalidToken)
		}
		e.revokeQuietly(ctx, refreshToken)
		return nil, e.refreshFailed(ctx, rec.UserID, ErrTokenExpired)
	}
	if rec.UserID != claims.Subject {
		return nil, e.refreshFailed(ctx, claims.Subject, ErrInvalidToken)
	}

	user, err := e.store.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, e.refreshFailed(ctx, rec.UserID, serverError("find user", err))
	}
	if user == nil {
		e.revokeQuietly(ctx, refreshToken)
		return nil, e.refreshFailed(ctx, rec.UserID, ErrUserNotFound)
	}

	access, refresh, err := e.signPair(ctx, user)
	if err != nil {
		return nil, e.refreshFailed(ctx, user.ID, err)
	}

	if err := e.rotate(ctx, refreshToken, user.ID, refresh); err != nil {
		return nil, e.refreshFailed(ctx, user.ID, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{"old_jti": claims.ID, "new_jti": refresh.ID}
	})

	pair := pairOf(access, refresh)
	return &pair, nil
}

// rotate retires oldToken and stores next. Without a transactional rotator
// the old token is revoked first, so a crash between the two writes leaves
// the user logged out rather than holding two live tokens.
func (e *Engine) rotate(ctx context.Context, oldToken, userID string, next jwt.Issued) error {
	if e.rotator != nil {
		_, err := e.rotator.RotateRefreshToken(ctx, oldToken, userID, next.Token, next.ExpiresAt)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRecordNotFound):
			return ErrInvalidToken
		default:
			return serverError("rotate refresh token", err)
		}
	}

	if err := e.store.RevokeRefreshToken(ctx, oldToken); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return serverError("revoke refresh token", err)
	}
	if _, err := e.store.CreateRefreshToken(ctx, userID, next.Token, next.ExpiresAt); err != nil {
		return serverError("persist refresh token", err)
	}
	return nil
}

func (e *Engine) revokeQuietly(ctx context.Context, token string) {
	if err := e.store.RevokeRefreshToken(ctx, token); err != nil && !errors.Is(err, ErrRecordNotFound) {
		e.warn(ctx, "revoke stale refresh token", err)
	}
}

func (e *Engine) refreshFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, err, nil)
	return err
}

// Logout revokes a single refresh token. Malformed, unknown, and already
// revoked tokens are accepted silently; only a store outage is an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	var userID string
	if claims, err := e.codec.Verify(ctx, refreshToken, jwt.KindRefresh); err == nil {
		userID = claims.Subject
	}

	if err := e.store.RevokeRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return serverError("revoke refresh token", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, nil, nil)
	return nil
}

// RevokeAllSessions revokes every refresh token of the user that owns
// accessToken. Access tokens already issued stay valid until they expire.
func (e *Engine) RevokeAllSessions(ctx context.Context, accessToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	claims, err := e.verifyToken(ctx, accessToken, jwt.KindAccess)
	if err != nil {
		return err
	}

	user, err := e.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		return serverError("find user", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := e.store.RevokeAllUserTokens(ctx, user.ID); err != nil {
		return serverError("revoke all refresh tokens", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, user.ID, nil, nil)
	return nil
}

// ValidateAccess verifies an access token without touching the store.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricValidateLatency, start)

	claims, err := e.verifyToken(ctx, accessToken, jwt.KindAccess)
	if err != nil {
		return nil, err
	}

	out := &AccessClaims{
		UserID:  claims.Subject,
		Email:   claims.Email,
		TokenID: claims.ID,
	}
	if claims.EmailVerified != nil {
		out.EmailVerified = *claims.EmailVerified
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
