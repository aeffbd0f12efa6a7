package auth

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"glazestudio/internal/middleware"
	"glazestudio/internal/pkg/response"
	"glazestudio/internal/views"
)

// Handler serves the admin login form and its JSON twin.
type Handler struct {
	service      *Service
	cookieSecure bool
}

func NewHandler(service *Service, cookieSecure bool) *Handler {
	return &Handler{service: service, cookieSecure: cookieSecure}
}

// RegisterRoutes mounts the login form. limit guards POST /login.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	r.GET("/login", h.Page)
	if limit != nil {
		r.POST("/login", limit, h.Login)
	} else {
		r.POST("/login", h.Login)
	}
	r.POST("/logout", h.Logout)
}

func (h *Handler) Page(c *gin.Context) {
	c.HTML(http.StatusOK, views.PageLogin, views.LoginPage{})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, req.Username, http.StatusBadRequest, response.CodeValidation, msgInvalidCredentials)
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		status, code := http.StatusUnauthorized, "INVALID_CREDENTIALS"
		if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrSessionNotIssued) {
			status, code = http.StatusBadGateway, response.CodeUpstream
		}
		h.fail(c, req.Username, status, code, FailureMessage(err))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	// MaxAge 0 keeps it a browser-session cookie
	c.SetCookie(middleware.SessionCookie, res.SessionToken, 0, "/", "", h.cookieSecure, true)

	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, res)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cookieSecure, true)
	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, gin.H{"logged_out": true})
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) fail(c *gin.Context, username string, status int, code, message string) {
	if response.WantsJSON(c) {
		response.Error(c, status, code, message)
		return
	}
	c.HTML(status, views.PageLogin, views.LoginPage{Username: username, Error: message})
}
