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

type rewardRepository interface {
	Create(ctx context.Context, reward *models.Reward) error
	FindByID(ctx context.Context, id string) (*models.Reward, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Reward, error)
	Update(ctx context.Context, reward *models.Reward) error
	Delete(ctx context.Context, id string) error
}

// RewardService manages rewards attached to events.
type RewardService struct {
	repo      rewardRepository
	events    eventFinder
	catalog   *catalogLookup
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRewardService creates the reward service. cache and audit may be nil.
func NewRewardService(repo rewardRepository, events eventFinder, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *RewardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardService{
		repo:      repo,
		events:    events,
		catalog:   &catalogLookup{events: events, rewards: repo, cache: cache},
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create adds a reward to an existing event.
func (s *RewardService) Create(ctx context.Context, eventID string, req dto.CreateRewardRequest, actorID string) (*models.Reward, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid reward payload")
	}
	rewardType := models.RewardType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !rewardType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported reward type %q", req.Type))
	}
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}

	reward := &models.Reward{
		EventID:     eventID,
		Type:        rewardType,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Quantity:    req.Quantity,
	}
	if err := s.repo.Create(ctx, reward); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create reward")
	}
	s.record(ctx, actorID, reward.ID, nil, reward)
	return reward, nil
}

// ListForEvent returns the rewards of an event.
func (s *RewardService) ListForEvent(ctx context.Context, eventID string) ([]models.Reward, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	rewards, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list rewards")
	}
	if rewards == nil {
		rewards = []models.Reward{}
	}
	return rewards, nil
}

// Get returns a reward by identifier.
func (s *RewardService) Get(ctx context.Context, id string) (*models.Reward, error) {
	reward, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reward not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load reward")
	}
	return reward, nil
}

// Lookup returns a reward through the cache and reports whether it was a hit.
func (s *RewardService) Lookup(ctx context.Context, id string) (*models.Reward, bool, error) {
	return s.catalog.reward(ctx, id)
}

// Update applies a partial update to a reward.
func (s *RewardService) Update(ctx context.Context, id string, req dto.UpdateRewardRequest, actorID string) (*models.Reward, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid reward payload")
	}
	reward, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *reward
	if req.Type != nil {
		rewardType := models.RewardType(strings.ToUpper(strings.TrimSpace(string(*req.Type))))
		if !rewardType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported reward type %q", *req.Type))
		}
		reward.Type = rewardType
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		reward.Name = name
	}
	if req.Description != nil {
		reward.Description = *req.Description
	}
	if req.Quantity != nil {
		reward.Quantity = *req.Quantity
	}
	if err := s.repo.Update(ctx, reward); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update reward")
	}
	s.invalidate(ctx, id)
	s.record(ctx, actorID, id, &before, reward)
	return reward, nil
}

// Delete removes a reward.
func (s *RewardService) Delete(ctx context.Context, id, actorID string) error {
	reward, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "reward not found")
		}
		return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to delete reward")
	}
	s.invalidate(ctx, id)
	s.record(ctx, actorID, id, reward, nil)
	return nil
}

func (s *RewardService) ensureEvent(ctx context.Context, eventID string) error {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load event")
	}
	return nil
}

func (s *RewardService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, rewardCacheKey(id)); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to invalidate reward cache", zap.String("reward_id", id), zap.Error(err))
	}
}

func (s *RewardService) record(ctx context.Context, actorID, rewardID string, before, after *models.Reward) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRewardWrite,
		Resource:   "reward",
		ResourceID: &rewardID,
		IPAddress:  "system",
		UserAgent:  "reward-service",
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to persist audit log", zap.String("reward_id", rewardID), zap.Error(err))
	}
}
