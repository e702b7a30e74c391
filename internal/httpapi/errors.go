package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/sessionauth"
)

type errorResponse struct {
	Error             string     `json:"error"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

func badBody(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
}

// fail writes the response for an engine error. Server errors are logged
// with their cause; the client only sees a generic message.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request().Context(), "request failed", "op", op, "error", err)
	}
	if body.RetryAfterSeconds > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	if errors.Is(err, sessionauth.ErrInvalidToken) || errors.Is(err, sessionauth.ErrTokenExpired) {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	}
	return c.JSON(status, body)
}

func classify(err error) (int, errorResponse) {
	var (
		invalid *sessionauth.InvalidCredentialsError
		locked  *sessionauth.AccountLockedError
		limited *sessionauth.TooManyRequestsError
	)
	switch {
	case errors.As(err, &invalid):
		remaining := invalid.AttemptsRemaining
		return http.StatusUnauthorized, errorResponse{Error: sessionauth.ErrInvalidCredentials.Error(), AttemptsRemaining: &remaining}
	case errors.As(err, &locked):
		until := locked.LockedUntil.UTC()
		return http.StatusLocked, errorResponse{Error: sessionauth.ErrAccountLocked.Error(), LockedUntil: &until}
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		return http.StatusTooManyRequests, errorResponse{Error: sessionauth.ErrTooManyRequests.Error(), RetryAfterSeconds: secs}
	}

	for _, m := range statusTable {
		if errors.Is(err, m.err) {
			return m.status, errorResponse{Error: m.err.Error()}
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: sessionauth.ErrServer.Error()}
}

var statusTable = []struct {
	err    error
	status int
}{
	{sessionauth.ErrServer, http.StatusInternalServerError},
	{sessionauth.ErrEngineNotReady, http.StatusServiceUnavailable},
	{sessionauth.ErrInvalidCredentials, http.StatusUnauthorized},
	{sessionauth.ErrTokenExpired, http.StatusUnauthorized},
	{sessionauth.ErrInvalidToken, http.StatusUnauthorized},
	{sessionauth.ErrAccountLocked, http.StatusLocked},
	{sessionauth.ErrTooManyRequests, http.StatusTooManyRequests},
	{sessionauth.ErrAlreadyExists, http.StatusConflict},
	{sessionauth.ErrEmailAlreadyVerified, http.StatusConflict},
	{sessionauth.ErrUserNotFound, http.StatusNotFound},
	{sessionauth.ErrInvalidLoginMethod, http.StatusBadRequest},
	{sessionauth.ErrValidation, http.StatusBadRequest},
	{sessionauth.ErrBadRequest, http.StatusBadRequest},
	{sessionauth.ErrProviderEmailUnverified, http.StatusForbidden},
	{sessionauth.ErrProviderNotConfigured, http.StatusNotFound},
}
