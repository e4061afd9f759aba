package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/event-reward-api/internal/dto"
	"github.com/noah-isme/event-reward-api/internal/models"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/logger"
)

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	Update(ctx context.Context, event *models.Event) error
	UpdateStatus(ctx context.Context, id string, status models.EventStatus) error
}

// EventService manages promotional events.
type EventService struct {
	repo      eventRepository
	catalog   *catalogLookup
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService creates the event service. cache and audit may be nil.
func NewEventService(repo eventRepository, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		repo:      repo,
		catalog:   &catalogLookup{events: repo, cache: cache},
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create defines a new event. Status defaults to INACTIVE.
func (s *EventService) Create(ctx context.Context, req dto.CreateEventRequest, actorID string) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid event payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be before endDate")
	}
	conditions, err := normalizeConditions(req.Conditions)
	if err != nil {
		return nil, err
	}
	status := models.EventStatus(strings.ToUpper(string(req.Status)))
	if status == "" {
		status = models.EventStatusInactive
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event status %q", req.Status))
	}

	event := &models.Event{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		Conditions:  conditions,
		Status:      status,
		CreatedBy:   actorID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create event")
	}
	s.record(ctx, actorID, event.ID, nil, event)
	return event, nil
}

// List returns a page of events.
func (s *EventService) List(ctx context.Context, query dto.EventQuery) ([]models.Event, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid query parameters")
	}
	filter := models.EventFilter{
		Status:   models.EventStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
		Page:     query.Page,
		PageSize: query.Limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event status %q", query.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list events")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an event by identifier.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load event")
	}
	return event, nil
}

// Lookup is the read path of Get. It serves from the cache when possible and reports a hit.
func (s *EventService) Lookup(ctx context.Context, id string) (*models.Event, bool, error) {
	return s.catalog.event(ctx, id)
}

// Update applies a partial update. When only one date bound changes it is checked
// against the stored other bound.
func (s *EventService) Update(ctx context.Context, id string, req dto.UpdateEventRequest, actorID string) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid event payload")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *event

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		event.Name = name
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.StartDate != nil {
		event.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		event.EndDate = req.EndDate.UTC()
	}
	if (req.StartDate != nil || req.EndDate != nil) && !event.StartDate.Before(event.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be before endDate")
	}
	if req.Conditions != nil {
		conditions, err := normalizeConditions(*req.Conditions)
		if err != nil {
			return nil, err
		}
		event.Conditions = conditions
	}
	if req.Status != nil {
		status := models.EventStatus(strings.ToUpper(string(*req.Status)))
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event status %q", *req.Status))
		}
		event.Status = status
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update event")
	}
	s.invalidate(ctx, event.ID)
	s.record(ctx, actorID, event.ID, &before, event)
	return event, nil
}

// UpdateStatus changes the event lifecycle status.
func (s *EventService) UpdateStatus(ctx context.Context, id string, req dto.UpdateEventStatusRequest, actorID string) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid status payload")
	}
	status := models.EventStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event status %q", req.Status))
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *event
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update event status")
	}
	event.Status = status
	s.invalidate(ctx, id)
	s.record(ctx, actorID, id, &before, event)
	return event, nil
}

func (s *EventService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, eventCacheKey(id)); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to invalidate event cache", zap.String("event_id", id), zap.Error(err))
	}
}

func (s *EventService) record(ctx context.Context, actorID, eventID string, before, after *models.Event) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionEventWrite,
		Resource:   "event",
		ResourceID: &eventID,
		IPAddress:  "system",
		UserAgent:  "event-service",
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	entry.NewValues, _ = json.Marshal(after)
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to persist audit log", zap.String("event_id", eventID), zap.Error(err))
	}
}

// normalizeConditions upper-cases condition types and rejects unknown ones.
func normalizeConditions(in []models.EventCondition) (models.EventConditions, error) {
	out := make(models.EventConditions, 0, len(in))
	for i, condition := range in {
		condition.Type = models.ConditionType(strings.ToUpper(strings.TrimSpace(string(condition.Type))))
		if !condition.Type.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("conditions[%d]: unsupported condition type %q", i, in[i].Type))
		}
		if condition.Target < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("conditions[%d]: target must not be negative", i))
		}
		if len(condition.Details) > 0 && !json.Valid(condition.Details) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("conditions[%d]: details must be valid JSON", i))
		}
		out = append(out, condition)
	}
	return out, nil
}
