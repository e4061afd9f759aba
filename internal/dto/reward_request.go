package dto

import "github.com/noah-isme/event-reward-api/internal/models"

// SubmitRewardRequest is the body of a reward claim.
type SubmitRewardRequest struct {
	EventID  string `json:"eventId" validate:"required,uuid"`
	RewardID string `json:"rewardId" validate:"required,uuid"`
}

// UpdateRequestStatusRequest carries an operator decision or a notes correction.
type UpdateRequestStatusRequest struct {
	Status models.RewardRequestStatus `json:"status" validate:"required"`
	Notes  string                     `json:"notes" validate:"max=2000"`
}

// RewardRequestQuery mirrors supported listing filters. DateFrom and DateTo accept
// RFC3339 timestamps or YYYY-MM-DD dates.
type RewardRequestQuery struct {
	EventID  string   `form:"eventId" validate:"omitempty,uuid"`
	UserID   string   `form:"userId" validate:"omitempty,max=128"`
	Status   []string `form:"status"`
	DateFrom string   `form:"dateFrom"`
	DateTo   string   `form:"dateTo"`
	Page     int      `form:"page" validate:"omitempty,min=1"`
	Limit    int      `form:"limit" validate:"omitempty,min=1,max=100"`
}

// RedistributionSummary reports how many retry jobs were queued.
type RedistributionSummary struct {
	Enqueued int `json:"enqueued"`
}
