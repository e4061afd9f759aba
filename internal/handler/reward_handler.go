package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/dto"
	"github.com/noah-isme/event-reward-api/internal/middleware"
	"github.com/noah-isme/event-reward-api/internal/service"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/response"
)

// RewardHandler exposes reward catalog endpoints.
type RewardHandler struct {
	rewards *service.RewardService
}

// NewRewardHandler constructs RewardHandler.
func NewRewardHandler(rewards *service.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// ListForEvent godoc
// @Summary List rewards of an event
// @Tags Rewards
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId}/rewards [get]
func (h *RewardHandler) ListForEvent(c *gin.Context) {
	rewards, err := h.rewards.ListForEvent(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rewards, nil)
}

// Get godoc
// @Summary Get reward detail
// @Tags Rewards
// @Produce json
// @Param id path string true "Reward ID"
// @Success 200 {object} response.Envelope
// @Router /rewards/{id} [get]
func (h *RewardHandler) Get(c *gin.Context) {
	reward, cacheHit, err := h.rewards.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, reward, nil, middleware.ResponseMeta(c))
}

// Create godoc
// @Summary Add a reward to an event
// @Tags Rewards
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body dto.CreateRewardRequest true "Reward payload"
// @Success 201 {object} response.Envelope
// @Router /events/{eventId}/rewards [post]
func (h *RewardHandler) Create(c *gin.Context) {
	var req dto.CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	reward, err := h.rewards.Create(c.Request.Context(), c.Param("eventId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reward)
}

// Update godoc
// @Summary Update reward
// @Tags Rewards
// @Accept json
// @Produce json
// @Param id path string true "Reward ID"
// @Param payload body dto.UpdateRewardRequest true "Reward payload"
// @Success 200 {object} response.Envelope
// @Router /rewards/{id} [put]
func (h *RewardHandler) Update(c *gin.Context) {
	var req dto.UpdateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	reward, err := h.rewards.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reward, nil)
}

// Delete godoc
// @Summary Delete reward
// @Tags Rewards
// @Param id path string true "Reward ID"
// @Success 204
// @Router /rewards/{id} [delete]
func (h *RewardHandler) Delete(c *gin.Context) {
	if err := h.rewards.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
