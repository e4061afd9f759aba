package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/pkg/config"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
)

// AuthService verifies identities established by the auth server. It never issues tokens.
type AuthService struct {
	config config.AuthConfig
	logger *zap.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{config: cfg, logger: logger}
}

// Mode returns the configured identity mode.
func (s *AuthService) Mode() string {
	return s.config.Mode
}

// ValidateToken parses an HS256 access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return s.normalize(claims)
}

// ClaimsFromHeaders builds claims from gateway-forwarded identity headers.
func (s *AuthService) ClaimsFromHeaders(userID, role string) (*models.JWTClaims, error) {
	return s.normalize(&models.JWTClaims{UserID: strings.TrimSpace(userID), Role: models.UserRole(role)})
}

func (s *AuthService) normalize(claims *models.JWTClaims) (*models.JWTClaims, error) {
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing user identity")
	}
	claims.Role = models.UserRole(strings.ToUpper(strings.TrimSpace(string(claims.Role))))
	if !claims.Role.Valid() {
		s.logger.Warn("rejected identity with unknown role", zap.String("user_id", claims.UserID), zap.String("role", string(claims.Role)))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	return claims, nil
}
