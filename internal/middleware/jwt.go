package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/service"
	"github.com/noah-isme/event-reward-api/pkg/config"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/logger"
	"github.com/noah-isme/event-reward-api/pkg/response"
)

// ContextUserKey is the gin context key storing the caller's claims.
const ContextUserKey = "currentUser"

// Identity headers injected by the API gateway in header mode.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

// Authenticate picks the identity source configured on the auth service.
func Authenticate(authService *service.AuthService) gin.HandlerFunc {
	if authService.Mode() == config.AuthModeHeader {
		return GatewayHeaders(authService)
	}
	return JWT(authService)
}

// JWT protects routes by requiring a valid bearer token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// GatewayHeaders trusts the identity forwarded by the gateway. Only deploy behind one.
func GatewayHeaders(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authService.ClaimsFromHeaders(c.GetHeader(HeaderUserID), c.GetHeader(HeaderUserRole))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *models.JWTClaims) {
	c.Set(ContextUserKey, claims)
	c.Set(logger.ContextUserIDKey, claims.UserID)
}
