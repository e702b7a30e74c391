package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token" query:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	user, err := h.svc.Signup(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, "signup", err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, "login", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	pair, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return h.fail(c, "refresh", err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	if err := h.svc.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return h.fail(c, "logout", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll runs behind the guard; the access token is re-read from the
// header because the engine resolves the user from it.
func (h *Handler) LogoutAll(c echo.Context) error {
	token, _ := middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err := h.svc.RevokeAllSessions(c.Request().Context(), token); err != nil {
		return h.fail(c, "logout_all", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	msg, err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return h.fail(c, "password_reset_request", err)
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: msg})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return h.fail(c, "password_reset_confirm", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	res, err := h.svc.ChangePassword(c.Request().Context(), claims.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return h.fail(c, "password_change", err)
	}
	return c.JSON(http.StatusOK, res)
}

// VerifyEmail accepts the token as JSON or as a query parameter so the
// mailed link can point straight at it.
func (h *Handler) VerifyEmail(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	if err := h.svc.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return h.fail(c, "email_verify", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *Handler) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	if err := h.svc.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return h.fail(c, "email_resend", err)
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: "if the account exists and is unverified, a verification email has been sent"})
}

func (h *Handler) OAuthStart(c echo.Context) error {
	start, err := h.svc.OAuthAuthorizationURL(c.Request().Context())
	if err != nil {
		return h.fail(c, "oauth_start", err)
	}
	return c.Redirect(http.StatusFound, start.URL)
}

func (h *Handler) OAuthCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "authorization denied: "+errParam)
	}
	res, err := h.svc.CompleteOAuthCallback(c.Request().Context(), sessionauth.OAuthCallback{
		Code:  c.QueryParam("code"),
		State: c.QueryParam("state"),
	})
	if err != nil {
		return h.fail(c, "oauth_callback", err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

type meResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (h *Handler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, meResponse{
		UserID:        claims.UserID,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	})
}
