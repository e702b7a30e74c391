package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionauth"
)

// AccessValidator is satisfied by *sessionauth.Engine.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*sessionauth.AccessClaims, error)
}

type claimsContextKey struct{}

func ClaimsFromContext(ctx context.Context) (*sessionauth.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*sessionauth.AccessClaims)
	return c, ok
}

// WithClaims stores claims the way Guard does. Handlers under test use it
// to skip token issuance.
func WithClaims(ctx context.Context, claims *sessionauth.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func Guard(v AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w, "invalid_token", "")
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "invalid_request", "")
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, sessionauth.ErrServer):
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			case errors.Is(err, sessionauth.ErrTokenExpired):
				unauthorized(w, "invalid_token", "token expired")
				return
			default:
				unauthorized(w, "invalid_token", "")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireVerifiedEmail must run behind Guard.
func RequireVerifiedEmail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, "invalid_token", "")
			return
		}
		if !claims.EmailVerified {
			http.Error(w, "email not verified", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, code, description string) {
	challenge := `Bearer error="` + code + `"`
	if description != "" {
		challenge += `, error_description="` + description + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
