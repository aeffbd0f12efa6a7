package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"glazestudio/internal/pkg/jwt"
	"glazestudio/internal/pkg/response"
	"glazestudio/internal/slotapi"
)

const (
	SessionCookie = "glaze_session"

	CtxUsername = "username"
)

// RequireSession admits requests carrying a valid session, from the cookie or
// an Authorization bearer header. The wrapped backend token is attached to the
// request context for slotapi calls. Pages redirect to /login; JSON callers
// get 401.
func RequireSession(sessions *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := sessionToken(c)
		if raw == "" {
			deny(c, "AUTH_REQUIRED", "Authentication required")
			return
		}

		claims, err := sessions.ValidateToken(raw)
		if err != nil {
			deny(c, "INVALID_TOKEN", "Session expired, please log in again.")
			return
		}

		c.Set(CtxUsername, claims.Username)
		c.Request = c.Request.WithContext(slotapi.WithToken(c.Request.Context(), claims.BackendToken))
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(SessionCookie); err == nil && v != "" {
		return v
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func deny(c *gin.Context, code, message string) {
	if response.WantsJSON(c) {
		response.Abort(c, http.StatusUnauthorized, code, message)
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
	c.Abort()
}
