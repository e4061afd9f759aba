package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/event-reward-api/internal/models"
)

// ErrDuplicateRequest is returned when a request already exists for the (user, event, reward) triple.
var ErrDuplicateRequest = errors.New("reward request already exists for user, event and reward")

const rewardRequestColumns = `id, user_id, event_id, reward_id, status, request_date, processed_by, process_date,
       notes, distributed_at, distribution_details, updated_at`

// appendNote concatenates a note onto the stored notes using the given placeholder.
func appendNote(placeholder string) string {
	return fmt.Sprintf(`CASE WHEN %[1]s::text = '' THEN notes
	WHEN COALESCE(notes, '') = '' THEN %[1]s::text
	ELSE notes || E'\n' || %[1]s::text END`, placeholder)
}

// RewardRequestRepository persists reward requests. The unique index on
// (user_id, event_id, reward_id) is the single arbiter of duplicate claims.
type RewardRequestRepository struct {
	db *sqlx.DB
}

// NewRewardRequestRepository constructs the repository.
func NewRewardRequestRepository(db *sqlx.DB) *RewardRequestRepository {
	return &RewardRequestRepository{db: db}
}

// Create inserts a new PENDING request.
func (r *RewardRequestRepository) Create(ctx context.Context, req *models.RewardRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RewardRequestPending
	}
	now := time.Now().UTC()
	if req.RequestDate.IsZero() {
		req.RequestDate = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO reward_requests
	(id, user_id, event_id, reward_id, status, request_date, processed_by, process_date, notes, distributed_at, distribution_details, updated_at)
	VALUES (:id, :user_id, :event_id, :reward_id, :status, :request_date, :processed_by, :process_date, :notes, :distributed_at, :distribution_details, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("create reward request: %w", err)
	}
	return nil
}

// ExistsForTriple reports whether a request was already filed for the triple.
func (r *RewardRequestRepository) ExistsForTriple(ctx context.Context, userID, eventID, rewardID string) (bool, error) {
	const query = `SELECT 1 FROM reward_requests WHERE user_id = $1 AND event_id = $2 AND reward_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, eventID, rewardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check reward request triple: %w", err)
	}
	return true, nil
}

// FindByID fetches a request by identifier.
func (r *RewardRequestRepository) FindByID(ctx context.Context, id string) (*models.RewardRequest, error) {
	query := `SELECT ` + rewardRequestColumns + ` FROM reward_requests WHERE id = $1`
	var req models.RewardRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, lookupError(err)
	}
	return &req, nil
}

// List returns requests matching the filter sorted by request date, newest first, with the total count.
func (r *RewardRequestRepository) List(ctx context.Context, filter models.RewardRequestFilter) ([]models.RewardRequest, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 5)
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("request_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("request_date <= $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM reward_requests%s ORDER BY request_date DESC LIMIT %d OFFSET %d", rewardRequestColumns, where, size, offset)
	var requests []models.RewardRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reward requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reward_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count reward requests: %w", err)
	}
	return requests, total, nil
}

// ListByUser returns every request filed by the user, newest first.
func (r *RewardRequestRepository) ListByUser(ctx context.Context, userID string) ([]models.RewardRequest, error) {
	query := `SELECT ` + rewardRequestColumns + ` FROM reward_requests WHERE user_id = $1 ORDER BY request_date DESC`
	var requests []models.RewardRequest
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, fmt.Errorf("list reward requests by user: %w", err)
	}
	return requests, nil
}

// DecisionParams groups the columns written when an operator decides a pending request.
type DecisionParams struct {
	ID          string
	Status      models.RewardRequestStatus
	ProcessedBy string
	ProcessDate time.Time
	Note        string
}

// Decide moves a request out of PENDING. Returns sql.ErrNoRows when the request is no longer pending.
func (r *RewardRequestRepository) Decide(ctx context.Context, params DecisionParams) (*models.RewardRequest, error) {
	query := fmt.Sprintf(`UPDATE reward_requests SET status = $2, processed_by = $3, process_date = $4, notes = %s, updated_at = $4
	WHERE id = $1 AND status = '%s'
	RETURNING %s`, appendNote("$5"), models.RewardRequestPending, rewardRequestColumns)
	var stored models.RewardRequest
	if err := r.db.GetContext(ctx, &stored, query, params.ID, params.Status, params.ProcessedBy, params.ProcessDate, params.Note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("decide reward request: %w", err)
	}
	return &stored, nil
}

// AppendNotes adds a note while the request still has the expected status.
// Returns sql.ErrNoRows when the status moved in the meantime.
func (r *RewardRequestRepository) AppendNotes(ctx context.Context, id string, expected models.RewardRequestStatus, note string) (*models.RewardRequest, error) {
	query := fmt.Sprintf(`UPDATE reward_requests SET notes = %s, updated_at = $4
	WHERE id = $1 AND status = $2
	RETURNING %s`, appendNote("$3"), rewardRequestColumns)
	var stored models.RewardRequest
	if err := r.db.GetContext(ctx, &stored, query, id, expected, note, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("append reward request notes: %w", err)
	}
	return &stored, nil
}

// DistributionParams captures the outcome of a distribution attempt.
type DistributionParams struct {
	ID            string
	Status        models.RewardRequestStatus
	DistributedAt *time.Time
	Details       string
	Note          string
}

// RecordDistribution persists a distribution outcome on an APPROVED request.
// Returns sql.ErrNoRows when the request is no longer APPROVED.
func (r *RewardRequestRepository) RecordDistribution(ctx context.Context, params DistributionParams) (*models.RewardRequest, error) {
	query := fmt.Sprintf(`UPDATE reward_requests SET status = $2, distributed_at = COALESCE($3, distributed_at),
	distribution_details = $4, notes = %s, updated_at = $6
	WHERE id = $1 AND status = '%s'
	RETURNING %s`, appendNote("$5"), models.RewardRequestApproved, rewardRequestColumns)
	var stored models.RewardRequest
	if err := r.db.GetContext(ctx, &stored, query, params.ID, params.Status, params.DistributedAt, params.Details, params.Note, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("record reward distribution: %w", err)
	}
	return &stored, nil
}

// ListFailedDistributions returns APPROVED requests whose last distribution attempt did not
// complete: a recorded failure, or no recorded outcome since a decision taken before staleBefore.
func (r *RewardRequestRepository) ListFailedDistributions(ctx context.Context, limit int, staleBefore time.Time) ([]models.RewardRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM reward_requests
	WHERE status = '%s' AND (distribution_details IS NOT NULL OR process_date < $1)
	ORDER BY updated_at ASC LIMIT %d`, rewardRequestColumns, models.RewardRequestApproved, limit)
	var requests []models.RewardRequest
	if err := r.db.SelectContext(ctx, &requests, query, staleBefore); err != nil {
		return nil, fmt.Errorf("list failed distributions: %w", err)
	}
	return requests, nil
}
