package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type AuthMiddleware struct {
	log  *logger.Logger
	auth services.OperatorAuth
}

func NewAuthMiddleware(log *logger.Logger, auth services.OperatorAuth) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), auth: auth}
}

// RequireOperator admits requests carrying a valid operator token. Browsers
// cannot set headers on websocket upgrades, so ?token= is accepted as well.
func (am *AuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := am.auth.Authenticate(c.Request.Context(), extractToken(c))
		if err != nil {
			am.log.Debug("operator rejected", "path", c.FullPath(), "error", err)
			response.Fail(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}
