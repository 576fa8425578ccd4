package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leolab/lottery-engine/internal/config"
	"github.com/leolab/lottery-engine/internal/utils"
)

// AuthHandler issues admin tokens.  There is a single configured admin
// account; this service has no end-user accounts at all, requesters are
// identified by opaque IDs supplied by the host application.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies the configured admin credentials and returns a signed
// token for the administrative endpoints.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	if h.Cfg.AdminHash == "" ||
		req.Username != h.Cfg.AdminUser ||
		!utils.VerifyPassword(h.Cfg.AdminHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tok, err := utils.NewAdminToken(h.Cfg.JWTSecret, req.Username, h.Cfg.AdminTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":   tok.Token,
		"expires": tok.Exp,
	})
}
