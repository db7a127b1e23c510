package middleware

import (
	"net/http"
	"strings"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/auth"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// RequireAuth accepts a bearer token in the Authorization header only.
func RequireAuth(tokens *auth.TokenManager, logger *zap.Logger) gin.HandlerFunc {
	return requireAuth(tokens, logger, false)
}

// RequireSocketAuth also accepts a token query parameter, for WebSocket
// upgrades where browsers cannot set headers.
func RequireSocketAuth(tokens *auth.TokenManager, logger *zap.Logger) gin.HandlerFunc {
	return requireAuth(tokens, logger, true)
}

func requireAuth(tokens *auth.TokenManager, logger *zap.Logger, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c, allowQuery)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		user, err := tokens.Parse(token)
		if err != nil {
			logger.Debug("rejected token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(userIDKey, user)
		c.Next()
	}
}

// UserFrom returns the authenticated user, or "" outside RequireAuth.
func UserFrom(c *gin.Context) model.UserID {
	v, ok := c.Get(userIDKey)
	if !ok {
		return ""
	}
	user, _ := v.(model.UserID)
	return user
}

func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if !allowQuery {
		return "", false
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"HttpStatusCode": status,
		"ResponseBody":   nil,
		"IsSuccess":      false,
		"Message":        message,
	})
}
