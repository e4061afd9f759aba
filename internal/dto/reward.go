package dto

import "github.com/noah-isme/event-reward-api/internal/models"

// CreateRewardRequest defines a reward under an event.
type CreateRewardRequest struct {
	Type        models.RewardType `json:"type" validate:"required"`
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Quantity    int64             `json:"quantity" validate:"gte=0"`
}

// UpdateRewardRequest applies a partial update to a reward.
type UpdateRewardRequest struct {
	Type        *models.RewardType `json:"type"`
	Name        *string            `json:"name" validate:"omitempty,max=200"`
	Description *string            `json:"description" validate:"omitempty,max=2000"`
	Quantity    *int64             `json:"quantity" validate:"omitempty,gte=0"`
}
