package saga

import (
	"fmt"

	"github.com/wayfare/wayfare/pkg/hub"
)

// defaultResources is the booking order when a trip request does not
// name resources explicitly.
var defaultResources = []Resource{ResourceFlight, ResourceHotel, ResourceCar}

// tripOrchestrator runs the requested resource sub-sagas sequentially.
// On the first outcome that does not commit, it cancels the committed
// prefix in reverse order and reports the trip failed.
func tripOrchestrator(octx *hub.OrchestrationContext) (any, error) {
	var req TripRequest
	if err := octx.UnmarshalInput(&req); err != nil {
		return nil, fmt.Errorf("decode trip request: %w", err)
	}

	resources := req.Resources
	if len(resources) == 0 {
		resources = defaultResources
	}
	for _, res := range resources {
		if _, err := ParseResource(string(res)); err != nil {
			return nil, err
		}
	}

	tripID := octx.InstanceID()
	result := TripResult{
		TripID:      tripID,
		Destination: req.Destination,
	}

	var committed []SubSagaOutcome
	for _, res := range resources {
		var outcome SubSagaOutcome
		err := octx.CallSubOrchestrator(orchestrationFor(res), BookingRequest{
			Resource:    res,
			Destination: req.Destination,
			Nights:      req.Nights,
			Days:        req.Days,
			TravelDate:  req.TravelDate,
			TripID:      tripID,
		}, &outcome)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, outcome)

		if !outcome.Committed() {
			result.Status = TripFailed
			result.FailureReason = fmt.Sprintf("%s booking %s: %s",
				outcome.Resource, outcome.Status, outcome.FailureReason)
			if err := rollback(octx, tripID, committed, &result); err != nil {
				return nil, err
			}
			return result, nil
		}
		committed = append(committed, outcome)
		result.TotalAmount += outcome.Amount
	}

	result.Status = TripSuccess
	return result, nil
}

// rollback cancels committed reservations in reverse booking order. A
// cancellation that reports failure is surfaced as failed-uncompensated
// rather than swallowed; the remaining compensations still run.
func rollback(octx *hub.OrchestrationContext, tripID string, committed []SubSagaOutcome, result *TripResult) error {
	for i := len(committed) - 1; i >= 0; i-- {
		outcome := committed[i]
		var cancel ActivityResult
		err := octx.CallActivity(cancelActivity(outcome.Resource), CancelRequest{
			Resource:            outcome.Resource,
			BookingConfirmation: outcome.BookingConfirmation,
			PaymentConfirmation: outcome.PaymentConfirmation,
			TripID:              tripID,
		}, &cancel)
		if err != nil {
			return err
		}
		result.Compensations = append(result.Compensations, Compensation{
			Resource:        outcome.Resource,
			CancellationRef: cancel.ConfirmationID,
			Succeeded:       cancel.Succeeded,
			Reason:          cancel.Reason,
		})
		if !cancel.Succeeded {
			result.Status = TripFailedUncompensated
		}
	}
	return nil
}
