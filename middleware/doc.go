// Package middleware provides net/http guards that authenticate requests
// with a bearer access token.
//
// [Guard] reads the Authorization header, validates the token through the
// engine and stores the resulting claims in the request context, where
// [ClaimsFromContext] finds them. [RequireVerifiedEmail] additionally
// rejects accounts whose email has not been confirmed.
//
// Token checks are stateless; nothing here touches the account store.
package middleware
