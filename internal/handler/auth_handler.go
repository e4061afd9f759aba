package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/service"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/response"
)

// AuthHandler exposes the identity resolved by the auth middleware.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

type identityResponse struct {
	UserID   string          `json:"userId"`
	Role     models.UserRole `json:"role"`
	Username string          `json:"username,omitempty"`
	Mode     string          `json:"mode"`
	Reviewer bool            `json:"reviewer"`
}

// Me godoc
// @Summary Current identity
// @Description Return the caller identity established from the bearer token or gateway headers
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, identityResponse{
		UserID:   claims.UserID,
		Role:     claims.Role,
		Username: claims.Username,
		Mode:     h.service.Mode(),
		Reviewer: claims.Role.CanReviewRequests(),
	}, nil)
}
