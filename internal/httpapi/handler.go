package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/middleware"
)

// Service is the engine surface the handlers call. *sessionauth.Engine
// satisfies it.
type Service interface {
	middleware.AccessValidator

	Signup(ctx context.Context, email, password string) (*sessionauth.UserSummary, error)
	Login(ctx context.Context, email, password string) (*sessionauth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*sessionauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID, current, next string) (*sessionauth.ChangePasswordResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	OAuthAuthorizationURL(ctx context.Context) (*sessionauth.OAuthStart, error)
	CompleteOAuthCallback(ctx context.Context, cb sessionauth.OAuthCallback) (*sessionauth.LoginResult, error)
}

var _ Service = (*sessionauth.Engine)(nil)

// Handler holds the routes' dependencies.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

const maxBodySize = "64K"

// Register mounts every route under g.
func (h *Handler) Register(g *echo.Group) {
	guard := echo.WrapMiddleware(middleware.Guard(h.svc))

	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/logout-all", h.LogoutAll, guard)

	g.POST("/password/forgot", h.RequestPasswordReset)
	g.POST("/password/reset", h.ResetPassword)
	g.POST("/password/change", h.ChangePassword, guard)

	g.POST("/email/verify", h.VerifyEmail)
	g.GET("/email/verify", h.VerifyEmail)
	g.POST("/email/resend", h.ResendVerification)

	g.GET("/oauth/google", h.OAuthStart)
	g.GET("/oauth/google/callback", h.OAuthCallback)

	g.GET("/me", h.Me, guard)
}

// NewServer builds an echo instance with recovery, a body limit, request
// context enrichment, and the auth routes under /auth.
func NewServer(svc Service, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(requestContext)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	NewHandler(svc, logger).Register(e.Group("/auth"))
	return e
}

// requestContext copies client address and user agent into the request
// context for audit events.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := sessionauth.WithClientIP(req.Context(), c.RealIP())
		ctx = sessionauth.WithUserAgent(ctx, req.UserAgent())
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}
