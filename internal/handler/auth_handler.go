package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/middleware"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
)

const refreshCookie = "refresh"

type AuthHandler struct {
	authService  *service.AuthService
	cookieSecure bool
}

func NewAuthHandler(authService *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieSecure: cookieSecure,
	}
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cookieSecure, true)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tokens, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setCookie(c, middleware.AccessCookie, tokens.Access, h.authService.AccessTTL())
	h.setCookie(c, refreshCookie, tokens.Refresh, h.authService.RefreshTTL())
	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		writeError(c, service.ErrInvalidCredentials)
		return
	}
	access, err := h.authService.Refresh(token)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setCookie(c, middleware.AccessCookie, access, h.authService.AccessTTL())
	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setCookie(c, middleware.AccessCookie, "", -1)
	h.setCookie(c, refreshCookie, "", -1)
	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}
