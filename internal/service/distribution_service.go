package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/pkg/config"
	"github.com/noah-isme/event-reward-api/pkg/logger"
)

// RewardDistributor fulfils one reward type and returns a human readable success message.
type RewardDistributor func(ctx context.Context, request *models.RewardRequest, reward *models.Reward) (string, error)

// DistributionService dispatches approved rewards to the matching fulfillment service.
type DistributionService struct {
	cfg          config.ServicesConfig
	downstream   *downstreamClient
	distributors map[models.RewardType]RewardDistributor
	metrics      *MetricsService
	logger       *zap.Logger
}

// DistributionOption customises the distribution service.
type DistributionOption func(*DistributionService)

// WithDistributionHTTPClient overrides the HTTP client used for fulfillment calls.
func WithDistributionHTTPClient(client *http.Client) DistributionOption {
	return func(s *DistributionService) {
		if client != nil {
			s.downstream.client = client
		}
	}
}

// WithRewardDistributor registers or replaces the distributor for a reward type.
func WithRewardDistributor(rewardType models.RewardType, distributor RewardDistributor) DistributionOption {
	return func(s *DistributionService) {
		if distributor != nil {
			s.distributors[rewardType] = distributor
		}
	}
}

// NewDistributionService constructs the dispatcher with the built-in distributor table.
func NewDistributionService(cfg config.ServicesConfig, metrics *MetricsService, logger *zap.Logger, opts ...DistributionOption) *DistributionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DistributionService{
		cfg:        cfg,
		downstream: newDownstreamClient(cfg.RequestTimeout, metrics),
		metrics:    metrics,
		logger:     logger,
	}
	svc.distributors = map[models.RewardType]RewardDistributor{
		models.RewardTypePoints: svc.creditPoints,
		models.RewardTypeItem:   svc.addInventory,
		models.RewardTypeCoupon: svc.issueCoupon,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Distribute performs exactly one fulfillment attempt. Failures are reported in the outcome,
// never returned as errors.
func (s *DistributionService) Distribute(ctx context.Context, request *models.RewardRequest, reward *models.Reward) (outcome models.DistributionOutcome) {
	if request == nil || reward == nil {
		return models.DistributionOutcome{Details: "reward information unavailable"}
	}
	log := logger.ForContext(ctx, s.logger).With(
		zap.String("reward_request_id", request.ID),
		zap.String("user_id", request.UserID),
		zap.String("reward_id", reward.ID),
		zap.String("reward_type", string(reward.Type)),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("reward distributor panicked", zap.Any("panic", r))
			outcome = models.DistributionOutcome{Details: fmt.Sprintf("distribution failed: %v", r)}
		}
		s.metrics.RecordDistribution(string(reward.Type), outcome.Success)
	}()

	distributor, ok := s.distributors[reward.Type]
	if !ok {
		log.Warn("unsupported reward type")
		return models.DistributionOutcome{Details: fmt.Sprintf("unsupported reward type: %s", reward.Type)}
	}

	details, err := distributor(ctx, request, reward)
	if err != nil {
		log.Error("reward distribution failed", zap.Error(err))
		return models.DistributionOutcome{Details: fmt.Sprintf("distribution failed: %v", err)}
	}
	log.Info("reward distributed", zap.String("details", details))
	return models.DistributionOutcome{Success: true, Details: details}
}

func (s *DistributionService) creditPoints(ctx context.Context, request *models.RewardRequest, reward *models.Reward) (string, error) {
	if s.cfg.PointsURL == "" {
		return "", fmt.Errorf("points %w", errServiceNotConfigured)
	}
	payload := map[string]interface{}{
		"points":         reward.Quantity,
		"sourceEventId":  request.EventID,
		"sourceRewardId": reward.ID,
	}
	endpoint := fmt.Sprintf("%s/users/%s/points/credit", s.cfg.PointsURL, url.PathEscape(request.UserID))
	if err := s.downstream.postJSON(ctx, "points", endpoint, payload, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("credited %d points", reward.Quantity), nil
}

func (s *DistributionService) addInventory(ctx context.Context, request *models.RewardRequest, reward *models.Reward) (string, error) {
	if s.cfg.InventoryURL == "" {
		return "", fmt.Errorf("inventory %w", errServiceNotConfigured)
	}
	payload := map[string]interface{}{
		"itemId":         reward.Name,
		"quantity":       reward.Quantity,
		"sourceEventId":  request.EventID,
		"sourceRewardId": reward.ID,
	}
	endpoint := fmt.Sprintf("%s/users/%s/inventory/add", s.cfg.InventoryURL, url.PathEscape(request.UserID))
	if err := s.downstream.postJSON(ctx, "inventory", endpoint, payload, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("added item %q (quantity %d)", reward.Name, reward.Quantity), nil
}

func (s *DistributionService) issueCoupon(ctx context.Context, request *models.RewardRequest, reward *models.Reward) (string, error) {
	if s.cfg.CouponURL == "" {
		return "", fmt.Errorf("coupon %w", errServiceNotConfigured)
	}
	payload := map[string]interface{}{
		"couponCode":     reward.Name,
		"sourceEventId":  request.EventID,
		"sourceRewardId": reward.ID,
	}
	endpoint := fmt.Sprintf("%s/users/%s/coupons/issue", s.cfg.CouponURL, url.PathEscape(request.UserID))
	if err := s.downstream.postJSON(ctx, "coupon", endpoint, payload, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("issued coupon %q", reward.Name), nil
}
