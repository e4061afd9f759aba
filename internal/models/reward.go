package models

import "time"

// RewardType selects which fulfillment service distributes a reward.
type RewardType string

const (
	RewardTypePoints RewardType = "POINTS"
	RewardTypeItem   RewardType = "ITEM"
	RewardTypeCoupon RewardType = "COUPON"
)

// Valid reports whether the reward type is supported.
func (t RewardType) Valid() bool {
	switch t {
	case RewardTypePoints, RewardTypeItem, RewardTypeCoupon:
		return true
	}
	return false
}

// Reward belongs to exactly one event. Quantity means a point amount, an item count or
// a coupon count depending on Type.
type Reward struct {
	ID          string     `db:"id" json:"id"`
	EventID     string     `db:"event_id" json:"eventId"`
	Type        RewardType `db:"type" json:"type"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Quantity    int64      `db:"quantity" json:"quantity"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}
