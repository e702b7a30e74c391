package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-123.apps.googleusercontent.com"
	testKid      = "kid-1"
)

type fakeGoogle struct {
	key        *rsa.PrivateKey
	server     *httptest.Server
	jwksHits   atomic.Int32
	lastForm   url.Values
	tokenReply map[string]any
	tokenCode  int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeGoogle{key: key, tokenCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/certs", func(w http.ResponseWriter, r *http.Request) {
		f.jwksHits.Add(1)
		pub := f.key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": testKid,
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenCode)
		_ = json.NewEncoder(w).Encode(f.tokenReply)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) provider(t *testing.T, now time.Time) *Provider {
	t.Helper()
	p, err := New(Config{
		ClientID:     testClientID,
		ClientSecret: "shh",
		RedirectURL:  "https://app.example.com/oauth/callback",
		AuthURL:      f.server.URL + "/auth",
		TokenURL:     f.server.URL + "/token",
		JWKSURL:      f.server.URL + "/certs",
		HTTPClient:   f.server.Client(),
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)
	return p
}

func (f *fakeGoogle) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1098765",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://example.com/ada.png",
		"nonce":          "n-1",
		"iat":            now.Add(-time.Minute).Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestNewRequiresClientAndRedirect(t *testing.T) {
	_, err := New(Config{RedirectURL: "https://x"})
	assert.ErrorIs(t, err, ErrMissingClientID)

	_, err = New(Config{ClientID: "id"})
	assert.ErrorIs(t, err, ErrMissingRedirectURL)
}

func TestAuthCodeURL(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider(t, time.Now())

	raw := p.AuthCodeURL("state-abc", "nonce-xyz")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, "nonce-xyz", q.Get("nonce"))
}

func TestExchangeCode(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenReply = map[string]any{"access_token": "at", "id_token": "idt", "expires_in": 3599}
	p := f.provider(t, time.Now())

	tokens, err := p.ExchangeCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "idt", tokens.IDToken)
	assert.Equal(t, 3599, tokens.ExpiresIn)

	assert.Equal(t, "authorization_code", f.lastForm.Get("grant_type"))
	assert.Equal(t, "code-1", f.lastForm.Get("code"))
	assert.Equal(t, testClientID, f.lastForm.Get("client_id"))
	assert.Equal(t, "shh", f.lastForm.Get("client_secret"))
}

func TestExchangeCodeRejectedByServer(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenCode = http.StatusBadRequest
	f.tokenReply = map[string]any{"error": "invalid_grant"}
	p := f.provider(t, time.Now())

	_, err := p.ExchangeCode(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestVerifyIdentityToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeGoogle(t)
	p := f.provider(t, now)

	id, err := p.VerifyIdentityToken(context.Background(), f.sign(t, testKid, baseClaims(now)))
	require.NoError(t, err)
	assert.Equal(t, "1098765", id.Subject)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Ada Lovelace", id.Name)
	assert.Equal(t, "n-1", id.Nonce)
}

func TestVerifyIdentityTokenCachesKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeGoogle(t)
	p := f.provider(t, now)

	for i := 0; i < 3; i++ {
		_, err := p.VerifyIdentityToken(context.Background(), f.sign(t, testKid, baseClaims(now)))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.jwksHits.Load())
}

func TestVerifyIdentityTokenStringEmailVerified(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeGoogle(t)
	p := f.provider(t, now)

	claims := baseClaims(now)
	claims["email_verified"] = "true"
	id, err := p.VerifyIdentityToken(context.Background(), f.sign(t, testKid, claims))
	require.NoError(t, err)
	assert.True(t, id.EmailVerified)

	claims["email_verified"] = false
	id, err = p.VerifyIdentityToken(context.Background(), f.sign(t, testKid, claims))
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)
}

func TestVerifyIdentityTokenRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		kid    string
		mutate func(jwt.MapClaims)
	}{
		{name: "wrong audience", kid: testKid, mutate: func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{name: "wrong issuer", kid: testKid, mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{name: "expired", kid: testKid, mutate: func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Hour).Unix() }},
		{name: "missing expiry", kid: testKid, mutate: func(c jwt.MapClaims) { delete(c, "exp") }},
		{name: "missing subject", kid: testKid, mutate: func(c jwt.MapClaims) { delete(c, "sub") }},
		{name: "unknown kid", kid: "kid-9", mutate: func(jwt.MapClaims) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGoogle(t)
			p := f.provider(t, now)
			claims := baseClaims(now)
			tt.mutate(claims)

			_, err := p.VerifyIdentityToken(context.Background(), f.sign(t, tt.kid, claims))
			assert.Error(t, err)
		})
	}
}

func TestVerifyIdentityTokenRejectsForeignKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeGoogle(t)
	p := f.provider(t, now)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(now))
	tok.Header["kid"] = testKid
	signed, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = p.VerifyIdentityToken(context.Background(), signed)
	assert.Error(t, err)
}

func TestVerifyIdentityTokenRejectsHMAC(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeGoogle(t)
	p := f.provider(t, now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims(now))
	tok.Header["kid"] = testKid
	signed, err := tok.SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	_, err = p.VerifyIdentityToken(context.Background(), signed)
	assert.Error(t, err)
}
