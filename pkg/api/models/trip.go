// Package models defines API request and response types.
package models

import (
	"encoding/json"
	"time"
)

// TripRequest is the body of POST /api/v1/trips.
type TripRequest struct {
	// Orchestration selects which saga to run. Empty means the full
	// trip saga; resource sub-sagas may also be submitted directly.
	Orchestration string `json:"orchestration,omitempty" validate:"omitempty,oneof=trip_booking flight_booking hotel_booking car_booking"`

	Destination string   `json:"destination" validate:"required,min=1,max=128"`
	Nights      int      `json:"nights,omitempty" validate:"min=0,max=365"`
	Days        int      `json:"days,omitempty" validate:"min=0,max=365"`
	TravelDate  string   `json:"travel_date,omitempty"`
	Resources   []string `json:"resources,omitempty" validate:"dive,oneof=flight hotel car"`
}

// TripResponse is returned when a trip saga is accepted.
type TripResponse struct {
	InstanceID    string    `json:"instance_id"`
	Orchestration string    `json:"orchestration"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// TripStatusResponse is the full view of one saga instance.
type TripStatusResponse struct {
	InstanceID    string          `json:"instance_id"`
	Orchestration string          `json:"orchestration"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// TripSummary is one row of a trip list response.
type TripSummary struct {
	InstanceID    string     `json:"instance_id"`
	Orchestration string     `json:"orchestration"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TripListResponse is the paginated trip listing.
type TripListResponse struct {
	Trips  []TripSummary `json:"trips"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
