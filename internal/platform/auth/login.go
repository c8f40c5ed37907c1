package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/accounts"
)

// LoginHandler exchanges email and password for an access token.
type LoginHandler struct {
	accounts accounts.Provider
	issuer   *Issuer
	logger   zerolog.Logger
}

func NewLoginHandler(p accounts.Provider, issuer *Issuer, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{accounts: p, issuer: issuer, logger: logger}
}

// RegisterRoutes mounts the login route. It must sit outside the
// authenticated group.
func (h *LoginHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

func (h *LoginHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	acct, err := h.accounts.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		h.logger.Error().Err(err).Msg("authenticate")
		return echo.NewHTTPError(http.StatusInternalServerError, "authentication unavailable")
	}

	token, exp, err := h.issuer.Issue(acct.UID, acct.Email, []string{acct.Profile.Role})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: exp,
		UID:       acct.UID,
		Email:     acct.Email,
		Role:      acct.Profile.Role,
	})
}
