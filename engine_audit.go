package sessionauth

import (
	"context"
	"errors"
)

const (
	auditEventSignupSuccess          = "signup_success"
	auditEventSignupDuplicate        = "signup_duplicate"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventAccountLocked          = "account_locked"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordChange         = "password_change"
	auditEventEmailVerificationSent  = "email_verification_sent"
	auditEventEmailVerificationCheck = "email_verification_confirm"
	auditEventOAuthStart             = "oauth_start"
	auditEventOAuthCallback          = "oauth_callback"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidLoginMethod AuditErrorCode = "invalid_login_method"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrBadRequest         AuditErrorCode = "bad_request"
	auditErrProviderUnverified AuditErrorCode = "provider_email_unverified"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	info := requestInfoFrom(ctx)
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        info.ip,
		UserAgent: info.userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrTooManyRequests, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidLoginMethod):
		return auditErrInvalidLoginMethod
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrTooManyRequests):
		return auditErrRateLimited
	case errors.Is(err, ErrBadRequest):
		return auditErrBadRequest
	case errors.Is(err, ErrProviderEmailUnverified):
		return auditErrProviderUnverified
	default:
		return auditErrInternal
	}
}
