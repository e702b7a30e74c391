package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/internal"
)

const oauthRandomBytes = 32

// OAuthAuthorizationURL starts a federated login. The returned state must
// come back unchanged in the provider redirect within OAuth.StateTTL.
func (e *Engine) OAuthAuthorizationURL(ctx context.Context) (*OAuthStart, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.idp == nil || e.states == nil {
		return nil, ErrProviderNotConfigured
	}

	state, err := internal.RandomToken(oauthRandomBytes)
	if err != nil {
		return nil, serverError("generate oauth state", err)
	}
	nonce, err := internal.RandomToken(oauthRandomBytes)
	if err != nil {
		return nil, serverError("generate oauth nonce", err)
	}
	if err := e.states.Put(state, nonce); err != nil {
		return nil, serverError("store oauth state", err)
	}

	e.metricInc(MetricOAuthStart)
	e.emitAudit(ctx, auditEventOAuthStart, true, "", nil, nil)

	return &OAuthStart{
		URL:   e.idp.AuthCodeURL(state, nonce),
		State: state,
		Nonce: nonce,
	}, nil
}

// CompleteOAuthCallback finishes a federated login: it consumes the state,
// exchanges the code, verifies the ID token and signs the user in, creating
// the local account on first use. Password lockout does not apply here.
func (e *Engine) CompleteOAuthCallback(ctx context.Context, cb OAuthCallback) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.idp == nil || e.states == nil {
		return nil, ErrProviderNotConfigured
	}

	if cb.Code == "" || cb.State == "" {
		return nil, e.oauthStateRejected(ctx)
	}
	nonce, ok := e.states.Consume(cb.State)
	if !ok {
		return nil, e.oauthStateRejected(ctx)
	}
	if cb.Nonce != "" && cb.Nonce != nonce {
		return nil, e.oauthStateRejected(ctx)
	}

	tokens, err := e.idp.ExchangeCode(ctx, cb.Code)
	if err != nil {
		return nil, e.oauthFailed(ctx, "", serverError("exchange authorization code", err))
	}
	if tokens.IDToken == "" {
		return nil, e.oauthFailed(ctx, "", serverError("exchange authorization code", errors.New("no id_token in response")))
	}

	identity, err := e.idp.VerifyIdentityToken(ctx, tokens.IDToken)
	if err != nil {
		e.logger.DebugContext(ctx, "id token rejected", "error", err)
		return nil, e.oauthFailed(ctx, "", ErrInvalidToken)
	}
	if identity.Nonce != "" && identity.Nonce != nonce {
		return nil, e.oauthFailed(ctx, "", ErrBadRequest)
	}
	if !identity.EmailVerified {
		return nil, e.oauthFailed(ctx, "", ErrProviderEmailUnverified)
	}

	email := internal.NormalizeEmail(identity.Email)
	if email == "" {
		return nil, e.oauthFailed(ctx, "", ErrInvalidToken)
	}

	user, created, err := e.upsertFederatedUser(ctx, email, identity)
	if err != nil {
		return nil, e.oauthFailed(ctx, "", err)
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, e.oauthFailed(ctx, user.ID, err)
	}

	e.metricInc(MetricOAuthSuccess)
	e.emitAudit(ctx, auditEventOAuthCallback, true, user.ID, nil, func() map[string]string {
		if created {
			return map[string]string{"provider": "google", "created": "true"}
		}
		return map[string]string{"provider": "google"}
	})

	return &LoginResult{TokenPair: pair, User: user.Summary(), Created: created}, nil
}

func (e *Engine) upsertFederatedUser(ctx context.Context, email string, id ProviderIdentity) (*User, bool, error) {
	user, err := e.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, false, serverError("find user", err)
	}

	if user == nil {
		in := CreateUserInput{
			Email:         email,
			EmailVerified: true,
			Name:          id.Name,
			PictureURL:    id.Picture,
		}
		if id.Subject != "" {
			sub := id.Subject
			in.GoogleID = &sub
		}

		user, err = e.store.CreateUser(ctx, in)
		switch {
		case err == nil:
			return user, true, nil
		case errors.Is(err, ErrRecordExists):
			// lost a race with a concurrent signup or callback
			user, err = e.store.FindUserByEmail(ctx, email)
			if err != nil {
				return nil, false, serverError("find user", err)
			}
			if user == nil {
				return nil, false, serverError("find user", ErrRecordNotFound)
			}
		default:
			return nil, false, serverError("create user", err)
		}
	}

	update, changed := profileDiff(user, id)
	if !changed {
		return user, false, nil
	}
	if err := e.store.UpdateProfile(ctx, user.ID, update); err != nil {
		return nil, false, serverError("update profile", err)
	}
	applyProfile(user, update)
	return user, false, nil
}

func profileDiff(u *User, id ProviderIdentity) (ProfileUpdate, bool) {
	var up ProfileUpdate
	changed := false

	if id.Name != "" && id.Name != u.Name {
		name := id.Name
		up.Name = &name
		changed = true
	}
	if id.Picture != "" && id.Picture != u.PictureURL {
		pic := id.Picture
		up.PictureURL = &pic
		changed = true
	}
	if id.Subject != "" && (u.GoogleID == nil || *u.GoogleID != id.Subject) {
		sub := id.Subject
		up.GoogleID = &sub
		changed = true
	}
	if !u.EmailVerified {
		verified := true
		up.EmailVerified = &verified
		changed = true
	}
	return up, changed
}

func applyProfile(u *User, up ProfileUpdate) {
	if up.Name != nil {
		u.Name = *up.Name
	}
	if up.PictureURL != nil {
		u.PictureURL = *up.PictureURL
	}
	if up.GoogleID != nil {
		u.GoogleID = up.GoogleID
	}
	if up.EmailVerified != nil {
		u.EmailVerified = *up.EmailVerified
	}
}

func (e *Engine) oauthStateRejected(ctx context.Context) error {
	e.metricInc(MetricOAuthStateRejected)
	return e.oauthFailed(ctx, "", ErrBadRequest)
}

func (e *Engine) oauthFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricOAuthFailure)
	e.emitAudit(ctx, auditEventOAuthCallback, false, userID, err, nil)
	return err
}
