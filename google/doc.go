// Package google implements sessionauth.IdentityProvider against Google's
// OpenID Connect endpoints. The redirect and code exchange go through
// golang.org/x/oauth2; ID tokens are verified by go-oidc against the keys
// published at the JWKS endpoint.
package google
