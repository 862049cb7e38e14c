// Package saga implements the travel booking sagas: flight, hotel,
// and car bookings as book-then-pay sub-sagas with compensation, and
// a trip orchestration that composes them with reverse-order rollback.
package saga

import "fmt"

// Resource is one bookable travel resource type.
type Resource string

const (
	ResourceFlight Resource = "flight"
	ResourceHotel  Resource = "hotel"
	ResourceCar    Resource = "car"
)

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case ResourceFlight, ResourceHotel, ResourceCar:
		return Resource(s), nil
	default:
		return "", fmt.Errorf("unknown resource %q", s)
	}
}

// refCode returns the two-letter reference prefix for the resource.
func (r Resource) refCode() string {
	switch r {
	case ResourceFlight:
		return "FL"
	case ResourceHotel:
		return "HT"
	case ResourceCar:
		return "CR"
	default:
		return "XX"
	}
}

// Orchestration names registered with the hub.
const (
	OrchestrationTrip   = "trip_booking"
	OrchestrationFlight = "flight_booking"
	OrchestrationHotel  = "hotel_booking"
	OrchestrationCar    = "car_booking"
)

// orchestrationFor maps a resource to its sub-saga orchestration name.
func orchestrationFor(r Resource) string {
	return string(r) + "_booking"
}

// Activity names registered with the hub.
func bookActivity(r Resource) string   { return "book_" + string(r) }
func payActivity(r Resource) string    { return "pay_" + string(r) }
func cancelActivity(r Resource) string { return "cancel_" + string(r) }

// BookingRequest is the input to a resource sub-saga and its booking
// activity.
type BookingRequest struct {
	Resource    Resource `json:"resource"`
	Destination string   `json:"destination"`
	Nights      int      `json:"nights,omitempty"`
	Days        int      `json:"days,omitempty"`
	TravelDate  string   `json:"travel_date,omitempty"`
	TripID      string   `json:"trip_id"`
}

// PaymentRequest is the input to a payment activity.
type PaymentRequest struct {
	Resource            Resource `json:"resource"`
	BookingConfirmation string   `json:"booking_confirmation"`
	TripID              string   `json:"trip_id"`
}

// CancelRequest is the input to a cancellation activity.
type CancelRequest struct {
	Resource            Resource `json:"resource"`
	BookingConfirmation string   `json:"booking_confirmation"`
	PaymentConfirmation string   `json:"payment_confirmation,omitempty"`
	TripID              string   `json:"trip_id"`
}

// ActivityResult is the business outcome of a simulated external call.
// Exactly one of ConfirmationID or Reason is set. A rejection is data,
// not an error: errors are reserved for infrastructure failures.
type ActivityResult struct {
	Succeeded      bool    `json:"succeeded"`
	ConfirmationID string  `json:"confirmation_id,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// OutcomeStatus is the terminal state of a resource sub-saga.
type OutcomeStatus string

const (
	// OutcomeCommitted means both booking and payment succeeded.
	OutcomeCommitted OutcomeStatus = "committed"
	// OutcomeFailed means the booking was rejected; nothing to undo.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeCompensated means the payment was declined and the
	// booking was cancelled.
	OutcomeCompensated OutcomeStatus = "compensated"
)

// SubSagaOutcome is the result of one resource sub-saga.
type SubSagaOutcome struct {
	Resource            Resource      `json:"resource"`
	Status              OutcomeStatus `json:"status"`
	BookingConfirmation string        `json:"booking_confirmation,omitempty"`
	PaymentConfirmation string        `json:"payment_confirmation,omitempty"`
	CancellationRef     string        `json:"cancellation_ref,omitempty"`
	Amount              float64       `json:"amount,omitempty"`
	FailureReason       string        `json:"failure_reason,omitempty"`
}

// Committed reports whether the sub-saga holds live reservations that
// would need compensation on a later failure.
func (o SubSagaOutcome) Committed() bool {
	return o.Status == OutcomeCommitted
}

// TripRequest is the input to the trip orchestration.
type TripRequest struct {
	Destination string     `json:"destination"`
	Nights      int        `json:"nights,omitempty"`
	Days        int        `json:"days,omitempty"`
	TravelDate  string     `json:"travel_date,omitempty"`
	Resources   []Resource `json:"resources,omitempty"`
}

// TripStatus is the terminal state of a trip saga.
type TripStatus string

const (
	TripSuccess TripStatus = "success"
	TripFailed  TripStatus = "failed"
	// TripFailedUncompensated means rollback itself reported a
	// failure, leaving at least one committed reservation standing.
	TripFailedUncompensated TripStatus = "failed-uncompensated"
)

// Compensation records one rollback cancellation performed by the
// trip orchestration.
type Compensation struct {
	Resource        Resource `json:"resource"`
	CancellationRef string   `json:"cancellation_ref,omitempty"`
	Succeeded       bool     `json:"succeeded"`
	Reason          string   `json:"reason,omitempty"`
}

// TripResult is the terminal output of the trip orchestration.
type TripResult struct {
	TripID        string           `json:"trip_id"`
	Status        TripStatus       `json:"status"`
	Destination   string           `json:"destination"`
	Outcomes      []SubSagaOutcome `json:"outcomes"`
	Compensations []Compensation   `json:"compensations,omitempty"`
	TotalAmount   float64          `json:"total_amount,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
}
