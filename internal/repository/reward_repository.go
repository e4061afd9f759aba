package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-reward-api/internal/models"
)

const rewardColumns = `id, event_id, type, name, description, quantity, created_at, updated_at`

// RewardRepository persists rewards attached to events.
type RewardRepository struct {
	db *sqlx.DB
}

// NewRewardRepository constructs the repository.
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// Create inserts a reward.
func (r *RewardRepository) Create(ctx context.Context, reward *models.Reward) error {
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = now
	}
	reward.UpdatedAt = now
	const query = `INSERT INTO rewards (` + rewardColumns + `)
	VALUES (:id, :event_id, :type, :name, :description, :quantity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reward); err != nil {
		return fmt.Errorf("create reward: %w", err)
	}
	return nil
}

// FindByID fetches a reward by identifier.
func (r *RewardRepository) FindByID(ctx context.Context, id string) (*models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	var reward models.Reward
	if err := r.db.GetContext(ctx, &reward, query, id); err != nil {
		return nil, lookupError(err)
	}
	return &reward, nil
}

// ListByEvent returns rewards for the event in creation order.
func (r *RewardRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE event_id = $1 ORDER BY created_at ASC`
	var rewards []models.Reward
	if err := r.db.SelectContext(ctx, &rewards, query, eventID); err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

// Update persists the mutable reward columns.
func (r *RewardRepository) Update(ctx context.Context, reward *models.Reward) error {
	reward.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rewards SET type = :type, name = :name, description = :description, quantity = :quantity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, reward); err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	return nil
}

// Delete removes a reward. Returns sql.ErrNoRows when nothing was deleted.
func (r *RewardRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	if err != nil {
		if errors.Is(lookupError(err), sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("delete reward: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reward delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
