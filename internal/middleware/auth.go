package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
	"autovpn-backend/pkg/utils"
)

const (
	UserKey      = "user"
	AccessCookie = "access"
)

type TokenVerifier interface {
	Verify(token, kind string) (string, error)
}

// RequireAuth accepts the access cookie or an Authorization: Bearer header.
func RequireAuth(auth TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(AccessCookie)
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token == "" {
			unauthorized(c, "not authenticated")
			return
		}
		email, err := auth.Verify(token, service.TokenAccess)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(UserKey, email)
		c.Next()
	}
}

func unauthorized(c *gin.Context, detail string) {
	err := utils.NewAuthError(detail)
	c.AbortWithStatusJSON(err.HTTPStatus(), model.ErrorResponse{OK: false, Code: err.Code, Detail: err.Message})
}

func CurrentUser(c *gin.Context) string {
	return c.GetString(UserKey)
}
