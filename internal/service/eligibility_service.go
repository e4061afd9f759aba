package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/pkg/config"
	"github.com/noah-isme/event-reward-api/pkg/logger"
)

// ConditionChecker decides a single condition for a user against a remote service.
type ConditionChecker func(ctx context.Context, userID string, target float64, details json.RawMessage) (bool, error)

var errConditionNotMet = errors.New("condition not met")

// EligibilityService verifies event conditions for a user. Every failure mode is
// treated as "not satisfied".
type EligibilityService struct {
	cfg        config.ServicesConfig
	downstream *downstreamClient
	checkers   map[models.ConditionType]ConditionChecker
	metrics    *MetricsService
	logger     *zap.Logger
}

// EligibilityOption customises the eligibility service.
type EligibilityOption func(*EligibilityService)

// WithEligibilityHTTPClient overrides the HTTP client used for condition checks.
func WithEligibilityHTTPClient(client *http.Client) EligibilityOption {
	return func(s *EligibilityService) {
		if client != nil {
			s.downstream.client = client
		}
	}
}

// WithConditionChecker registers or replaces the checker for a condition type.
func WithConditionChecker(conditionType models.ConditionType, checker ConditionChecker) EligibilityOption {
	return func(s *EligibilityService) {
		if checker != nil {
			s.checkers[conditionType] = checker
		}
	}
}

// NewEligibilityService constructs the service with the built-in checker table.
func NewEligibilityService(cfg config.ServicesConfig, metrics *MetricsService, logger *zap.Logger, opts ...EligibilityOption) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = 5 * time.Second
	}
	svc := &EligibilityService{
		cfg:        cfg,
		downstream: newDownstreamClient(cfg.RequestTimeout, metrics),
		metrics:    metrics,
		logger:     logger,
	}
	svc.checkers = svc.defaultCheckers()
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Verify reports whether the user satisfies a single condition. It never returns an error.
func (s *EligibilityService) Verify(ctx context.Context, userID string, condition models.EventCondition) (satisfied bool) {
	log := logger.ForContext(ctx, s.logger).With(zap.String("user_id", userID), zap.String("condition", string(condition.Type)), zap.Float64("target", condition.Target))
	defer func() {
		if r := recover(); r != nil {
			log.Error("condition checker panicked", zap.Any("panic", r))
			satisfied = false
		}
		s.metrics.RecordEligibilityCheck(string(condition.Type), satisfied)
	}()

	checker, ok := s.checkers[condition.Type]
	if !ok {
		log.Warn("unsupported condition type")
		return false
	}

	ok, err := checker(ctx, userID, condition.Target, condition.Details)
	if err != nil {
		log.Warn("condition check failed", zap.Error(err))
		return false
	}
	if !ok {
		log.Info("condition not met")
	}
	return ok
}

// Evaluate reports whether the user satisfies every condition of the event. Conditions are
// checked concurrently under the evaluation budget and the first failure cancels the rest.
func (s *EligibilityService) Evaluate(ctx context.Context, userID string, event *models.Event) bool {
	if event == nil {
		return false
	}
	if len(event.Conditions) == 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, condition := range event.Conditions {
		condition := condition
		g.Go(func() error {
			if !s.Verify(gctx, userID, condition) {
				return fmt.Errorf("%s: %w", condition.Type, errConditionNotMet)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.ForContext(ctx, s.logger).Info("user not eligible for event",
			zap.String("user_id", userID),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}
