package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/config"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/jwt"
	"realtime_chat/pkg/logger"
)

const userIDKey = "user_id"

type AuthMiddleware struct {
	secret string
	issuer string
	log    logger.Logger
}

func NewAuthMiddleware(cfg config.JWTConfig, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: cfg.AccessSecret,
		issuer: cfg.Issuer,
		log:    log,
	}
}

// RequireAuth accepts a bearer token from the Authorization header or, for
// websocket upgrades where browsers cannot set headers, the access_token
// query parameter.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			abortWithError(c, err)
			return
		}

		claims, err := jwt.ValidateToken(token, m.secret, m.issuer)
		if err != nil {
			if errors.Is(err, apperrors.ErrTokenExpired) {
				abortWithError(c, apperrors.Unauthorized("token expired"))
				return
			}
			m.log.Debug("Rejected access token", "error", err, "path", c.Request.URL.Path)
			abortWithError(c, apperrors.Unauthorized("invalid or expired token"))
			return
		}

		c.Set(userIDKey, claims.UserID())
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", apperrors.Unauthorized("authorization header required")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
