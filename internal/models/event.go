package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// EventStatus captures the operator-controlled lifecycle of an event.
type EventStatus string

const (
	EventStatusInactive  EventStatus = "INACTIVE"
	EventStatusActive    EventStatus = "ACTIVE"
	EventStatusEnded     EventStatus = "ENDED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known values.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusInactive, EventStatusActive, EventStatusEnded, EventStatusCancelled:
		return true
	}
	return false
}

// ConditionType names an eligibility rule checked against a remote service.
type ConditionType string

const (
	ConditionLoginStreak      ConditionType = "LOGIN_STREAK"
	ConditionFriendInvite     ConditionType = "FRIEND_INVITE"
	ConditionQuestCompletion  ConditionType = "QUEST_COMPLETION"
	ConditionPurchaseActivity ConditionType = "PURCHASE_ACTIVITY"
)

// Valid reports whether the condition type is supported.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionLoginStreak, ConditionFriendInvite, ConditionQuestCompletion, ConditionPurchaseActivity:
		return true
	}
	return false
}

// EventCondition is a single eligibility rule attached to an event.
type EventCondition struct {
	Type    ConditionType   `json:"type"`
	Target  float64         `json:"target"`
	Details json.RawMessage `json:"details,omitempty"`
}

// EventConditions is stored as a JSONB column.
type EventConditions []EventCondition

// Value implements driver.Valuer.
func (c EventConditions) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *EventConditions) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = EventConditions{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("event conditions: unsupported scan type")
	}
	if len(raw) == 0 {
		*c = EventConditions{}
		return nil
	}
	return json.Unmarshal(raw, c)
}

// Event is a time-bounded promotion users can claim rewards from.
type Event struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	StartDate   time.Time       `db:"start_date" json:"startDate"`
	EndDate     time.Time       `db:"end_date" json:"endDate"`
	Conditions  EventConditions `db:"conditions" json:"conditions"`
	Status      EventStatus     `db:"status" json:"status"`
	CreatedBy   string          `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether requests may be submitted against the event.
func (e *Event) IsActive() bool {
	return e != nil && e.Status == EventStatusActive
}

// EventFilter constrains event listing.
type EventFilter struct {
	Status   EventStatus
	Page     int
	PageSize int
}
