package sessionauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSignupCreatesAccountAndSendsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary, err := env.engine.Signup(ctx, "Alice@Example.com", "Secret123!")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if summary.Email != "alice@example.com" || summary.EmailVerified {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected verification mail, got %d", env.mailer.count())
	}

	if err := env.engine.VerifyEmail(ctx, env.mailer.lastToken(t)); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !env.storedUser(t, summary.ID).EmailVerified {
		t.Fatal("expected verified email")
	}
}

func TestSignupDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, "alice@example.com", "Secret123!"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := env.engine.Signup(ctx, "ALICE@example.com", "Another123!"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSignupDuplicate]; got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: "Secret123!"},
		{name: "no at sign", email: "alice.example.com", password: "Secret123!"},
		{name: "display name", email: "Alice <alice@example.com>", password: "Secret123!"},
		{name: "short password", email: "alice@example.com", password: "short"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.Signup(ctx, tc.email, tc.password); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSignupSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	if _, err := env.engine.Signup(context.Background(), "alice@example.com", "Secret123!"); err != nil {
		t.Fatalf("mail failure must not fail signup: %v", err)
	}
}

func TestVerifyEmailErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, "alice@example.com", "Secret123!"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	token := env.mailer.lastToken(t)

	if err := env.engine.VerifyEmail(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := env.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verification token must be single use, got %v", err)
	}
}

func TestVerifyEmailExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.engine.Signup(ctx, "alice@example.com", "Secret123!")
	token := env.mailer.lastToken(t)

	env.clock.Advance(24*time.Hour + time.Second)
	if err := env.engine.VerifyEmail(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyEmailAlreadyVerifiedConsumesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary, _ := env.engine.Signup(ctx, "alice@example.com", "Secret123!")
	first := env.mailer.lastToken(t)
	if err := env.engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	second := env.mailer.lastToken(t)

	if err := env.engine.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, first); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}

	rec, _ := env.store.FindEmailVerification(ctx, first)
	if rec == nil || !rec.Used {
		t.Fatal("token should be consumed even when already verified")
	}
	if !env.storedUser(t, summary.ID).EmailVerified {
		t.Fatal("expected verified email")
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "done@example.com", "Secret123!", true)

	if err := env.engine.ResendVerification(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email should succeed silently, got %v", err)
	}
	if env.mailer.count() != 0 {
		t.Fatal("no mail may be sent for unknown email")
	}
	if err := env.engine.ResendVerification(ctx, "done@example.com"); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
}

func TestResendVerificationSurfacesMailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Secret123!", false)
	env.mailer.err = errors.New("smtp down")

	if err := env.engine.ResendVerification(context.Background(), "alice@example.com"); !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
}
