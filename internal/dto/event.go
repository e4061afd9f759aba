package dto

import (
	"time"

	"github.com/noah-isme/event-reward-api/internal/models"
)

// CreateEventRequest payload for defining a promotional event.
type CreateEventRequest struct {
	Name        string                  `json:"name" validate:"required,max=200"`
	Description string                  `json:"description" validate:"max=2000"`
	StartDate   time.Time               `json:"startDate" validate:"required"`
	EndDate     time.Time               `json:"endDate" validate:"required"`
	Conditions  []models.EventCondition `json:"conditions" validate:"dive"`
	Status      models.EventStatus      `json:"status"`
}

// UpdateEventRequest applies a partial update. Conditions, when present, replace the stored list.
type UpdateEventRequest struct {
	Name        *string                  `json:"name" validate:"omitempty,max=200"`
	Description *string                  `json:"description" validate:"omitempty,max=2000"`
	StartDate   *time.Time               `json:"startDate"`
	EndDate     *time.Time               `json:"endDate"`
	Conditions  *[]models.EventCondition `json:"conditions"`
	Status      *models.EventStatus      `json:"status"`
}

// UpdateEventStatusRequest toggles the event lifecycle.
type UpdateEventStatusRequest struct {
	Status models.EventStatus `json:"status" validate:"required"`
}

// EventQuery filters event listings.
type EventQuery struct {
	Status string `form:"status"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}
