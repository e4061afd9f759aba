package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/event-reward-api/internal/dto"
	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/repository"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/jobs"
	"github.com/noah-isme/event-reward-api/pkg/logger"
)

// JobTypeRedistribute identifies queued redistribution jobs.
const JobTypeRedistribute = "reward_request.redistribute"

const (
	defaultPageSize = 10
	maxPageSize     = 100
	systemActor     = "system"

	outcomeWriteAttempts = 3
	outcomeWriteBackoff  = 100 * time.Millisecond
)

type rewardRequestStore interface {
	Create(ctx context.Context, req *models.RewardRequest) error
	ExistsForTriple(ctx context.Context, userID, eventID, rewardID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.RewardRequest, error)
	List(ctx context.Context, filter models.RewardRequestFilter) ([]models.RewardRequest, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.RewardRequest, error)
	Decide(ctx context.Context, params repository.DecisionParams) (*models.RewardRequest, error)
	AppendNotes(ctx context.Context, id string, expected models.RewardRequestStatus, note string) (*models.RewardRequest, error)
	RecordDistribution(ctx context.Context, params repository.DistributionParams) (*models.RewardRequest, error)
	ListFailedDistributions(ctx context.Context, limit int, staleBefore time.Time) ([]models.RewardRequest, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type eligibilityEvaluator interface {
	Evaluate(ctx context.Context, userID string, event *models.Event) bool
}

type rewardDispatcher interface {
	Distribute(ctx context.Context, request *models.RewardRequest, reward *models.Reward) models.DistributionOutcome
}

type requestLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RewardRequestService drives the reward claim lifecycle.
type RewardRequestService struct {
	repo        rewardRequestStore
	catalog     *catalogLookup
	eligibility eligibilityEvaluator
	dispatcher  rewardDispatcher
	audit       auditLogger
	locker      requestLocker
	lockTTL     time.Duration
	queue       jobEnqueuer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	outcomeAttempts int
	outcomeBackoff  time.Duration
}

// RewardRequestOption configures the service.
type RewardRequestOption func(*RewardRequestService)

// WithRequestCache routes event and reward lookups through the cache.
func WithRequestCache(cache *CacheService, ttl time.Duration) RewardRequestOption {
	return func(s *RewardRequestService) {
		s.catalog.cache = cache
		s.catalog.ttl = ttl
	}
}

// WithRequestAudit records audit entries for every state change.
func WithRequestAudit(audit auditLogger) RewardRequestOption {
	return func(s *RewardRequestService) {
		s.audit = audit
	}
}

// WithRequestLocker guards redistribution with a per-request lock.
func WithRequestLocker(locker requestLocker, ttl time.Duration) RewardRequestOption {
	return func(s *RewardRequestService) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithRedistributionQueue enables batch redistribution through a worker queue.
func WithRedistributionQueue(queue jobEnqueuer) RewardRequestOption {
	return func(s *RewardRequestService) {
		s.queue = queue
	}
}

// WithRequestMetrics records submission outcomes.
func WithRequestMetrics(metrics *MetricsService) RewardRequestOption {
	return func(s *RewardRequestService) {
		s.metrics = metrics
	}
}

// NewRewardRequestService constructs the lifecycle service.
func NewRewardRequestService(
	repo rewardRequestStore,
	events eventFinder,
	rewards rewardFinder,
	eligibility eligibilityEvaluator,
	dispatcher rewardDispatcher,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...RewardRequestOption,
) *RewardRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RewardRequestService{
		repo:        repo,
		catalog:     &catalogLookup{events: events, rewards: rewards},
		eligibility: eligibility,
		dispatcher:  dispatcher,
		lockTTL:     30 * time.Second,
		validator:   validate,
		logger:      logger,

		outcomeAttempts: outcomeWriteAttempts,
		outcomeBackoff:  outcomeWriteBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit files a new PENDING request after checking the event, the reward, duplicates and eligibility.
func (s *RewardRequestService) Submit(ctx context.Context, req dto.SubmitRewardRequest, userID string) (*models.RewardRequest, error) {
	request, err := s.submit(ctx, req, userID)
	s.metrics.RecordSubmission(submissionResult(err))
	return request, err
}

func (s *RewardRequestService) submit(ctx context.Context, req dto.SubmitRewardRequest, userID string) (*models.RewardRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid event or reward id")
	}

	event, _, err := s.catalog.event(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrEventInactive, fmt.Sprintf("event %s is not active", event.ID))
	}

	reward, _, err := s.catalog.reward(ctx, req.RewardID)
	if err != nil {
		return nil, err
	}
	if reward.EventID != event.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reward %s does not belong to event %s", reward.ID, event.ID))
	}

	start := time.Now()
	exists, err := s.repo.ExistsForTriple(ctx, userID, event.ID, reward.ID)
	s.metrics.ObserveDBQuery("reward_requests_exists", time.Since(start))
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to check existing requests")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reward already requested for this event")
	}

	if !s.eligibility.Evaluate(ctx, userID, event) {
		return nil, appErrors.ErrNotEligible
	}

	request := &models.RewardRequest{
		UserID:   userID,
		EventID:  event.ID,
		RewardID: reward.ID,
		Status:   models.RewardRequestPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "reward already requested for this event")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create reward request")
	}

	s.emitAudit(ctx, userID, models.AuditActionRequestSubmit, request.ID, nil, request)
	return request, nil
}

func (s *RewardRequestService) log(ctx context.Context) *zap.Logger {
	return logger.ForContext(ctx, s.logger)
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case appErrors.Is(err, appErrors.ErrConflict):
		return resultConflict
	case appErrors.Is(err, appErrors.ErrNotEligible):
		return resultRejected
	case appErrors.IsAny(err, appErrors.ErrValidation, appErrors.ErrEventInactive, appErrors.ErrNotFound):
		return resultInvalid
	default:
		return resultFailure
	}
}

// UpdateStatus applies an operator decision or a notes correction. Approving a request
// distributes the reward synchronously and persists the outcome before returning.
func (s *RewardRequestService) UpdateStatus(ctx context.Context, id string, req dto.UpdateRequestStatusRequest, actorID string) (*models.RewardRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid status payload")
	}
	target := models.RewardRequestStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	note := strings.TrimSpace(req.Notes)

	switch {
	case current.Status == models.RewardRequestPending && (target == models.RewardRequestApproved || target == models.RewardRequestRejected):
		return s.decide(ctx, current, target, note, actorID)
	case target == current.Status && current.Status != models.RewardRequestPending:
		if note == "" {
			return current, nil
		}
		updated, err := s.repo.AppendNotes(ctx, current.ID, current.Status, note)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "request status changed concurrently")
			}
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update notes")
		}
		s.emitAudit(ctx, actorID, models.AuditActionRequestNotes, updated.ID, current, updated)
		return updated, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot change status from %s to %s", current.Status, target))
	}
}

func (s *RewardRequestService) decide(ctx context.Context, current *models.RewardRequest, target models.RewardRequestStatus, note, actorID string) (*models.RewardRequest, error) {
	decided, err := s.repo.Decide(ctx, repository.DecisionParams{
		ID:          current.ID,
		Status:      target,
		ProcessedBy: actorID,
		ProcessDate: time.Now().UTC(),
		Note:        note,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request already processed")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update request status")
	}
	s.emitAudit(ctx, actorID, models.AuditActionRequestDecision, decided.ID, current, decided)

	if target != models.RewardRequestApproved {
		return decided, nil
	}
	return s.distribute(ctx, decided, actorID)
}

// distribute runs one fulfillment attempt and records its outcome on an APPROVED request.
func (s *RewardRequestService) distribute(ctx context.Context, request *models.RewardRequest, actorID string) (*models.RewardRequest, error) {
	params := repository.DistributionParams{ID: request.ID, Status: models.RewardRequestApproved}

	reward, _, err := s.catalog.reward(ctx, request.RewardID)
	if err != nil {
		s.log(ctx).Error("cannot resolve reward for distribution",
			zap.String("reward_request_id", request.ID),
			zap.String("reward_id", request.RewardID),
			zap.Error(err),
		)
		params.Details = "reward information could not be loaded; distribution skipped"
		params.Note = "error: " + params.Details
	} else {
		outcome := s.dispatcher.Distribute(ctx, request, reward)
		params.Details = outcome.Details
		if outcome.Success {
			now := time.Now().UTC()
			params.Status = models.RewardRequestCompleted
			params.DistributedAt = &now
		} else {
			params.Note = outcome.Details
		}
	}

	recorded, err := s.recordOutcome(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request changed during distribution")
		}
		s.log(ctx).Error("distribution outcome not recorded",
			zap.String("reward_request_id", request.ID),
			zap.String("outcome_status", string(params.Status)),
			zap.String("outcome_details", params.Details),
			zap.Error(err),
		)
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to record distribution outcome")
	}
	s.emitAudit(ctx, actorID, models.AuditActionRequestDistribute, recorded.ID, request, recorded)
	return recorded, nil
}

// recordOutcome persists a distribution outcome, retrying transient storage errors. The
// write ignores caller cancellation because the downstream side effect already happened.
func (s *RewardRequestService) recordOutcome(ctx context.Context, params repository.DistributionParams) (*models.RewardRequest, error) {
	writeCtx := context.WithoutCancel(ctx)
	attempts := s.outcomeAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var recorded *models.RewardRequest
		recorded, err = s.repo.RecordDistribution(writeCtx, params)
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			return recorded, err
		}
		s.log(ctx).Warn("recording distribution outcome failed",
			zap.String("reward_request_id", params.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < attempts {
			time.Sleep(s.outcomeBackoff * time.Duration(attempt))
		}
	}
	return nil, err
}

// Redistribute retries distribution for an APPROVED request whose earlier attempt failed.
func (s *RewardRequestService) Redistribute(ctx context.Context, id, actorID string) (*models.RewardRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RewardRequestApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot redistribute a %s request", request.Status))
	}

	if s.locker != nil {
		key := "reward_request:" + request.ID
		token, ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to lock request")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrLocked, "distribution already in progress for this request")
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log(ctx).Warn("failed to release request lock", zap.String("reward_request_id", request.ID), zap.Error(err))
			}
		}()
	}

	return s.distribute(ctx, request, actorID)
}

// EnqueueRedistribution queues a retry job for APPROVED requests whose last distribution failed
// or whose outcome was never recorded. Decisions younger than the lock TTL are left alone
// because their first attempt may still be running.
func (s *RewardRequestService) EnqueueRedistribution(ctx context.Context, limit int) (int, error) {
	if s.queue == nil {
		return 0, appErrors.Clone(appErrors.ErrPreconditionFailed, "redistribution queue not configured")
	}
	start := time.Now()
	pending, err := s.repo.ListFailedDistributions(ctx, limit, time.Now().UTC().Add(-s.lockTTL))
	s.metrics.ObserveDBQuery("reward_requests_failed_distributions", time.Since(start))
	if err != nil {
		return 0, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list failed distributions")
	}
	enqueued := 0
	for _, request := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: request.ID, Type: JobTypeRedistribute, Payload: request.ID}); err != nil {
			return enqueued, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to enqueue redistribution")
		}
		enqueued++
	}
	s.log(ctx).Info("redistribution jobs enqueued", zap.Int("count", enqueued))
	return enqueued, nil
}

// HandleRedistributionJob is the queue handler for redistribution jobs. Only storage
// failures are returned so the queue retries them; downstream failures are already
// recorded on the request.
func (s *RewardRequestService) HandleRedistributionJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		return jobs.Permanent(fmt.Errorf("job %s: invalid payload", job.ID))
	}
	_, err := s.Redistribute(ctx, id, systemActor)
	switch {
	case err == nil:
		return nil
	case appErrors.Is(err, appErrors.ErrConflict), appErrors.Is(err, appErrors.ErrLocked), appErrors.Is(err, appErrors.ErrNotFound):
		s.log(ctx).Info("redistribution skipped", zap.String("reward_request_id", id), zap.Error(err))
		return nil
	default:
		return err
	}
}

// ListMine returns every request filed by the user, newest first.
func (s *RewardRequestService) ListMine(ctx context.Context, userID string) ([]models.RewardRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	requests, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list reward requests")
	}
	if requests == nil {
		requests = []models.RewardRequest{}
	}
	return requests, nil
}

// List returns a page of requests matching the query.
func (s *RewardRequestService) List(ctx context.Context, query dto.RewardRequestQuery) ([]models.RewardRequest, *models.Pagination, error) {
	filter, err := s.buildFilter(query)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	requests, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("reward_requests_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list reward requests")
	}
	if requests == nil {
		requests = []models.RewardRequest{}
	}
	return requests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a request. Users may only read their own requests.
func (s *RewardRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RewardRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanReviewRequests() && request.UserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

func (s *RewardRequestService) load(ctx context.Context, id string) (*models.RewardRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reward request not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load reward request")
	}
	return request, nil
}

func (s *RewardRequestService) buildFilter(query dto.RewardRequestQuery) (models.RewardRequestFilter, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.RewardRequestFilter{}, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid query parameters")
	}
	filter := models.RewardRequestFilter{
		EventID:  query.EventID,
		UserID:   query.UserID,
		Page:     query.Page,
		PageSize: query.Limit,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.RewardRequestStatus(part)
			if !status.Valid() {
				return models.RewardRequestFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", part))
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if query.DateFrom != "" {
		from, _, err := parseQueryDate(query.DateFrom)
		if err != nil {
			return models.RewardRequestFilter{}, appErrors.Clone(appErrors.ErrValidation, "dateFrom must be YYYY-MM-DD or RFC3339")
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, dateOnly, err := parseQueryDate(query.DateTo)
		if err != nil {
			return models.RewardRequestFilter{}, appErrors.Clone(appErrors.ErrValidation, "dateTo must be YYYY-MM-DD or RFC3339")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return models.RewardRequestFilter{}, appErrors.Clone(appErrors.ErrValidation, "dateFrom must not be after dateTo")
	}
	return filter, nil
}

// parseQueryDate accepts a calendar date or an RFC3339 timestamp and reports which one it was.
func parseQueryDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

func (s *RewardRequestService) emitAudit(ctx context.Context, actorID, action, requestID string, before, after *models.RewardRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "reward_request",
		ResourceID: &requestID,
		IPAddress:  "system",
		UserAgent:  "reward-request-service",
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log(ctx).Warn("failed to persist audit log", zap.String("reward_request_id", requestID), zap.String("action", action), zap.Error(err))
	}
}
