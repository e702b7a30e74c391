package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	sessionauth "github.com/MrEthical07/sessionauth"
)

const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// DefaultIssuers are the values Google puts in the iss claim.
var DefaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

var (
	ErrMissingClientID    = errors.New("google: client id is required")
	ErrMissingRedirectURL = errors.New("google: redirect url is required")
	ErrExchangeFailed     = errors.New("google: code exchange failed")
)

// Config identifies the OAuth client. Endpoint fields default to Google's
// production URLs; tests point them at local servers.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL  string
	TokenURL string
	JWKSURL  string
	Issuers  []string

	HTTPClient *http.Client
	Now        func() time.Time
}

// Provider talks to Google's authorization, token, and key endpoints.
type Provider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	issuers  []string
	client   *http.Client
}

var _ sessionauth.IdentityProvider = (*Provider)(nil)

// New validates cfg and fills defaults. Signing keys are fetched from
// JWKSURL on first use and again whenever a token names an unknown key.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, ErrMissingClientID
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, ErrMissingRedirectURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = DefaultIssuers
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	// The key set keeps this context for background refetches.
	keys := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), cfg.HTTPClient), cfg.JWKSURL)

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{oidc.ScopeOpenID, "email", "profile"},
		},
		// Issuer is checked against the configured list after verification,
		// since Google uses two spellings.
		verifier: oidc.NewVerifier("", keys, &oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: []string{oidc.RS256},
			SkipIssuerCheck:      true,
			Now:                  cfg.Now,
		}),
		issuers: slices.Clone(cfg.Issuers),
		client:  cfg.HTTPClient,
	}, nil
}

// AuthCodeURL builds the consent redirect carrying state and nonce.
func (p *Provider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode redeems an authorization code at the token endpoint.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (sessionauth.ProviderTokens, error) {
	tok, err := p.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.client), code)
	if err != nil {
		return sessionauth.ProviderTokens{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	return sessionauth.ProviderTokens{
		AccessToken: tok.AccessToken,
		IDToken:     idToken,
		ExpiresIn:   int(tok.ExpiresIn),
	}, nil
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// VerifyIdentityToken checks signature, issuer, audience, and expiry of an
// ID token and returns its identity claims.
func (p *Provider) VerifyIdentityToken(ctx context.Context, idToken string) (sessionauth.ProviderIdentity, error) {
	tok, err := p.verifier.Verify(oidc.ClientContext(ctx, p.client), idToken)
	if err != nil {
		return sessionauth.ProviderIdentity{}, fmt.Errorf("google: verify id token: %w", err)
	}
	if !slices.Contains(p.issuers, tok.Issuer) {
		return sessionauth.ProviderIdentity{}, fmt.Errorf("google: unexpected issuer %q", tok.Issuer)
	}
	if tok.Subject == "" {
		return sessionauth.ProviderIdentity{}, errors.New("google: id token has no subject")
	}

	var claims idClaims
	if err := tok.Claims(&claims); err != nil {
		return sessionauth.ProviderIdentity{}, fmt.Errorf("google: decode id token claims: %w", err)
	}
	return sessionauth.ProviderIdentity{
		Subject:       tok.Subject,
		Email:         claims.Email,
		EmailVerified: truthy(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
		Nonce:         tok.Nonce,
	}, nil
}

// truthy accepts email_verified as a bool or the string "true"; older
// tokens used the string form.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}
