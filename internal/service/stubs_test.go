package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/event-reward-api/internal/models"
	"github.com/noah-isme/event-reward-api/internal/repository"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/jobs"
)

// memoryRequestStore mimics the conditional updates and the unique triple index.
type memoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.RewardRequest
	triples  map[string]string
	failList bool
	// failRecord makes the next RecordDistribution calls fail with a storage error.
	failRecord int
}

func newMemoryRequestStore() *memoryRequestStore {
	return &memoryRequestStore{requests: map[string]*models.RewardRequest{}, triples: map[string]string{}}
}

func tripleKey(userID, eventID, rewardID string) string {
	return strings.Join([]string{userID, eventID, rewardID}, "|")
}

func appendNoteText(existing *string, note string) *string {
	if note == "" {
		return existing
	}
	if existing == nil || *existing == "" {
		return &note
	}
	joined := *existing + "\n" + note
	return &joined
}

func (m *memoryRequestStore) Create(ctx context.Context, req *models.RewardRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tripleKey(req.UserID, req.EventID, req.RewardID)
	if _, exists := m.triples[key]; exists {
		return repository.ErrDuplicateRequest
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.RequestDate = now
	req.UpdatedAt = now
	copied := *req
	m.requests[req.ID] = &copied
	m.triples[key] = req.ID
	return nil
}

func (m *memoryRequestStore) ExistsForTriple(ctx context.Context, userID, eventID, rewardID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.triples[tripleKey(userID, eventID, rewardID)]
	return exists, nil
}

func (m *memoryRequestStore) FindByID(ctx context.Context, id string) (*models.RewardRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (m *memoryRequestStore) List(ctx context.Context, filter models.RewardRequestFilter) ([]models.RewardRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.RewardRequest
	for _, req := range m.requests {
		if filter.EventID != "" && req.EventID != filter.EventID {
			continue
		}
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, status := range filter.Status {
				if status == req.Status {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		if filter.DateFrom != nil && req.RequestDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && req.RequestDate.After(*filter.DateTo) {
			continue
		}
		matched = append(matched, *req)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RequestDate.After(matched[j].RequestDate) })
	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memoryRequestStore) ListByUser(ctx context.Context, userID string) ([]models.RewardRequest, error) {
	list, _, err := m.List(ctx, models.RewardRequestFilter{UserID: userID, Page: 1, PageSize: 1000})
	return list, err
}

func (m *memoryRequestStore) Decide(ctx context.Context, params repository.DecisionParams) (*models.RewardRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[params.ID]
	if !ok || req.Status != models.RewardRequestPending {
		return nil, sql.ErrNoRows
	}
	req.Status = params.Status
	processedBy := params.ProcessedBy
	processDate := params.ProcessDate
	req.ProcessedBy = &processedBy
	req.ProcessDate = &processDate
	req.Notes = appendNoteText(req.Notes, params.Note)
	copied := *req
	return &copied, nil
}

func (m *memoryRequestStore) AppendNotes(ctx context.Context, id string, expected models.RewardRequestStatus, note string) (*models.RewardRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != expected {
		return nil, sql.ErrNoRows
	}
	req.Notes = appendNoteText(req.Notes, note)
	copied := *req
	return &copied, nil
}

func (m *memoryRequestStore) RecordDistribution(ctx context.Context, params repository.DistributionParams) (*models.RewardRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord > 0 {
		m.failRecord--
		return nil, errors.New("connection reset by peer")
	}
	req, ok := m.requests[params.ID]
	if !ok || req.Status != models.RewardRequestApproved {
		return nil, sql.ErrNoRows
	}
	req.Status = params.Status
	if params.DistributedAt != nil {
		at := *params.DistributedAt
		req.DistributedAt = &at
	}
	details := params.Details
	req.DistributionDetails = &details
	req.Notes = appendNoteText(req.Notes, params.Note)
	copied := *req
	return &copied, nil
}

func (m *memoryRequestStore) ListFailedDistributions(ctx context.Context, limit int, staleBefore time.Time) ([]models.RewardRequest, error) {
	if m.failList {
		return nil, sql.ErrConnDone
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RewardRequest
	for _, req := range m.requests {
		if req.Status != models.RewardRequestApproved {
			continue
		}
		unrecorded := req.ProcessDate != nil && req.ProcessDate.Before(staleBefore)
		if req.DistributionDetails != nil || unrecorded {
			out = append(out, *req)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// age moves the decision time of a request into the past.
func (m *memoryRequestStore) age(id string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[id]; ok && req.ProcessDate != nil {
		aged := req.ProcessDate.Add(-by)
		req.ProcessDate = &aged
	}
}

func (m *memoryRequestStore) put(req models.RewardRequest) *models.RewardRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}
	m.requests[req.ID] = &req
	m.triples[tripleKey(req.UserID, req.EventID, req.RewardID)] = req.ID
	copied := req
	return &copied
}

type stubEventRepo struct {
	mu     sync.Mutex
	events map[string]*models.Event
	calls  int
}

func newStubEventRepo(events ...*models.Event) *stubEventRepo {
	repo := &stubEventRepo{events: map[string]*models.Event{}}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	return repo
}

func (s *stubEventRepo) Create(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	copied := *event
	s.events[event.ID] = &copied
	return nil
}

func (s *stubEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	event, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (s *stubEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *stubEventRepo) Update(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events[event.ID] = &copied
	return nil
}

func (s *stubEventRepo) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		e.Status = status
	}
	return nil
}

type stubRewardRepo struct {
	mu      sync.Mutex
	rewards map[string]*models.Reward
}

func newStubRewardRepo(rewards ...*models.Reward) *stubRewardRepo {
	repo := &stubRewardRepo{rewards: map[string]*models.Reward{}}
	for _, r := range rewards {
		repo.rewards[r.ID] = r
	}
	return repo
}

func (s *stubRewardRepo) Create(ctx context.Context, reward *models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	copied := *reward
	s.rewards[reward.ID] = &copied
	return nil
}

func (s *stubRewardRepo) FindByID(ctx context.Context, id string) (*models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reward, ok := s.rewards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *reward
	return &copied, nil
}

func (s *stubRewardRepo) ListByEvent(ctx context.Context, eventID string) ([]models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reward
	for _, r := range s.rewards {
		if r.EventID == eventID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubRewardRepo) Update(ctx context.Context, reward *models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *reward
	s.rewards[reward.ID] = &copied
	return nil
}

func (s *stubRewardRepo) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rewards[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rewards, id)
	return nil
}

type stubEvaluator struct {
	mu       sync.Mutex
	eligible bool
	calls    int
	gate     chan struct{}
}

func (s *stubEvaluator) Evaluate(ctx context.Context, userID string, event *models.Event) bool {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.eligible
}

type stubDispatcher struct {
	mu      sync.Mutex
	outcome models.DistributionOutcome
	calls   int
	// entered is signalled on each call; gate, when set, blocks the call until closed.
	entered chan struct{}
	gate    chan struct{}
}

func (s *stubDispatcher) Distribute(ctx context.Context, request *models.RewardRequest, reward *models.Reward) models.DistributionOutcome {
	s.mu.Lock()
	s.calls++
	entered, gate, outcome := s.entered, s.gate, s.outcome
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return outcome
}

func (s *stubDispatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *log)
	return nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

type stubLocker struct {
	held     map[string]bool
	released int
}

func (s *stubLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if s.held == nil {
		s.held = map[string]bool{}
	}
	if s.held[key] {
		return "", false, nil
	}
	s.held[key] = true
	return "token", true, nil
}

func (s *stubLocker) Release(ctx context.Context, key, token string) error {
	delete(s.held, key)
	s.released++
	return nil
}

type stubQueue struct {
	jobs []jobs.Job
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type memoryCacheRepo struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}
