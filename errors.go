package sessionauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	// ErrInvalidLoginMethod is returned when a password login is attempted on
	// an account that has no password (OAuth-only).
	ErrInvalidLoginMethod   = errors.New("invalid login method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrAlreadyExists        = errors.New("account already exists")
	ErrValidation           = errors.New("validation failed")
	ErrTooManyRequests      = errors.New("too many requests")
	ErrServer               = errors.New("internal server error")
	// ErrBadRequest marks a rejected OAuth callback: missing, unknown,
	// replayed, or expired state, or a nonce mismatch.
	ErrBadRequest              = errors.New("bad request")
	ErrProviderEmailUnverified = errors.New("provider email not verified")
	ErrProviderNotConfigured   = errors.New("identity provider not configured")
	ErrEngineNotReady          = errors.New("engine not initialized")
)

// Store-level sentinels. AccountStore implementations return these so the
// engine can tell a conflict or a missing row apart from an outage.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// InvalidCredentialsError is a failed password check that did not lock the
// account.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials: %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// AccountLockedError carries when password login becomes possible again.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return "account locked until " + e.LockedUntil.UTC().Format(time.RFC3339)
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// TooManyRequestsError carries how long the caller should wait.
type TooManyRequestsError struct {
	RetryAfter time.Duration
}

func (e *TooManyRequestsError) Error() string {
	return fmt.Sprintf("too many requests: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *TooManyRequestsError) Is(target error) bool { return target == ErrTooManyRequests }

// ServerError wraps a collaborator failure. Error never includes the cause;
// use errors.Unwrap or %+v logging of Err to see it.
type ServerError struct {
	Op  string
	Err error
}

func (e *ServerError) Error() string {
	if e.Op == "" {
		return ErrServer.Error()
	}
	return e.Op + ": " + ErrServer.Error()
}

func (e *ServerError) Unwrap() error { return e.Err }

func (e *ServerError) Is(target error) bool { return target == ErrServer }

func serverError(op string, err error) error {
	return &ServerError{Op: op, Err: err}
}
