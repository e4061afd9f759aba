package models

import "time"

// RewardRequestStatus captures the claim workflow states.
type RewardRequestStatus string

const (
	RewardRequestPending   RewardRequestStatus = "PENDING"
	RewardRequestApproved  RewardRequestStatus = "APPROVED"
	RewardRequestRejected  RewardRequestStatus = "REJECTED"
	RewardRequestCompleted RewardRequestStatus = "COMPLETED"
)

// Valid reports whether the status is part of the workflow.
func (s RewardRequestStatus) Valid() bool {
	switch s {
	case RewardRequestPending, RewardRequestApproved, RewardRequestRejected, RewardRequestCompleted:
		return true
	}
	return false
}

// RewardRequest is a user's claim on a reward. At most one exists per (user, event, reward).
type RewardRequest struct {
	ID                  string              `db:"id" json:"id"`
	UserID              string              `db:"user_id" json:"userId"`
	EventID             string              `db:"event_id" json:"eventId"`
	RewardID            string              `db:"reward_id" json:"rewardId"`
	Status              RewardRequestStatus `db:"status" json:"status"`
	RequestDate         time.Time           `db:"request_date" json:"requestDate"`
	ProcessedBy         *string             `db:"processed_by" json:"processedBy,omitempty"`
	ProcessDate         *time.Time          `db:"process_date" json:"processDate,omitempty"`
	Notes               *string             `db:"notes" json:"notes,omitempty"`
	DistributedAt       *time.Time          `db:"distributed_at" json:"distributedAt,omitempty"`
	DistributionDetails *string             `db:"distribution_details" json:"distributionDetails,omitempty"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updatedAt"`
}

// NotesText returns the notes or an empty string.
func (r *RewardRequest) NotesText() string {
	if r == nil || r.Notes == nil {
		return ""
	}
	return *r.Notes
}

// RewardRequestFilter constrains listing queries. Page is 1-based.
type RewardRequestFilter struct {
	EventID  string
	UserID   string
	Status   []RewardRequestStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
