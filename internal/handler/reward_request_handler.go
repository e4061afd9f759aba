package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/dto"
	"github.com/noah-isme/event-reward-api/internal/middleware"
	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/service"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/response"
)

type rewardRequestService interface {
	Submit(ctx context.Context, req dto.SubmitRewardRequest, userID string) (*models.RewardRequest, error)
	ListMine(ctx context.Context, userID string) ([]models.RewardRequest, error)
	List(ctx context.Context, query dto.RewardRequestQuery) ([]models.RewardRequest, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RewardRequest, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateRequestStatusRequest, actorID string) (*models.RewardRequest, error)
	Redistribute(ctx context.Context, id, actorID string) (*models.RewardRequest, error)
	EnqueueRedistribution(ctx context.Context, limit int) (int, error)
}

type requestExporter interface {
	Export(ctx context.Context, query dto.RewardRequestQuery, format string) (*service.ExportResult, error)
}

// RewardRequestHandler exposes the reward claim lifecycle.
type RewardRequestHandler struct {
	requests   rewardRequestService
	exporter   requestExporter
	batchLimit int
}

// NewRewardRequestHandler constructs the handler. batchLimit caps redistribution sweeps.
func NewRewardRequestHandler(requests rewardRequestService, exporter requestExporter, batchLimit int) *RewardRequestHandler {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &RewardRequestHandler{requests: requests, exporter: exporter, batchLimit: batchLimit}
}

// Submit godoc
// @Summary Request an event reward
// @Tags Reward Requests
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body dto.SubmitRewardRequest true "Reward claim"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /events/{eventId}/request [post]
func (h *RewardRequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	pathEventID := c.Param("eventId")
	if req.EventID == "" {
		req.EventID = pathEventID
	}
	if req.EventID != pathEventID {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "eventId in body does not match path"))
		return
	}

	request, err := h.requests.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListMine godoc
// @Summary List my reward requests
// @Tags Reward Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/me [get]
func (h *RewardRequestHandler) ListMine(c *gin.Context) {
	requests, err := h.requests.ListMine(c.Request.Context(), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// List godoc
// @Summary List reward requests
// @Tags Reward Requests
// @Produce json
// @Param eventId query string false "Event ID"
// @Param userId query string false "User ID"
// @Param status query []string false "Status filter, repeatable or comma separated"
// @Param dateFrom query string false "YYYY-MM-DD or RFC3339"
// @Param dateTo query string false "YYYY-MM-DD or RFC3339"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RewardRequestHandler) List(c *gin.Context) {
	var query dto.RewardRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	requests, pagination, err := h.requests.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination, middleware.ResponseMeta(c))
}

// Export godoc
// @Summary Export reward requests
// @Tags Reward Requests
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query []string false "Status filter"
// @Param dateFrom query string false "YYYY-MM-DD or RFC3339"
// @Param dateTo query string false "YYYY-MM-DD or RFC3339"
// @Success 200 {file} file
// @Router /requests/export [get]
func (h *RewardRequestHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "export not configured"))
		return
	}
	var query dto.RewardRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), query, c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload, result.Truncated)
}

// Get godoc
// @Summary Get a reward request
// @Tags Reward Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RewardRequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdateStatus godoc
// @Summary Approve, reject or annotate a reward request
// @Description Approving distributes the reward before responding. A failed distribution leaves the request APPROVED with a note.
// @Tags Reward Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateRequestStatusRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/status [patch]
func (h *RewardRequestHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	request, err := h.requests.UpdateStatus(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Redistribute godoc
// @Summary Retry distribution for an approved request
// @Tags Reward Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/redistribute [post]
func (h *RewardRequestHandler) Redistribute(c *gin.Context) {
	request, err := h.requests.Redistribute(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// EnqueueRedistribution godoc
// @Summary Queue retries for every approved request whose distribution failed
// @Tags Reward Requests
// @Produce json
// @Param limit query int false "Maximum requests to queue"
// @Success 202 {object} response.Envelope
// @Router /requests/redistribute [post]
func (h *RewardRequestHandler) EnqueueRedistribution(c *gin.Context) {
	limit := h.batchLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	count, err := h.requests.EnqueueRedistribution(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.RedistributionSummary{Enqueued: count})
}
