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

// EventHandler exposes event endpoints.
type EventHandler struct {
	events *service.EventService
}

// NewEventHandler constructs EventHandler.
func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param status query string false "INACTIVE, ACTIVE, ENDED or CANCELLED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var query dto.EventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	events, pagination, err := h.events.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get event detail
// @Tags Events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, cacheHit, err := h.events.Lookup(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, event, nil, middleware.ResponseMeta(c))
}

// Create godoc
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	event, err := h.events.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update event
// @Tags Events
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	event, err := h.events.Update(c.Request.Context(), c.Param("eventId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// UpdateStatus godoc
// @Summary Change event status
// @Tags Events
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body dto.UpdateEventStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId}/status [patch]
func (h *EventHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	event, err := h.events.UpdateStatus(c.Request.Context(), c.Param("eventId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
