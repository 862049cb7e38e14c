package saga

import (
	"fmt"

	"github.com/wayfare/wayfare/pkg/hub"
)

// bookingOrchestrator returns the sub-saga for one resource:
// book, then pay, and on a declined payment cancel the booking.
// A rejected booking terminates with no side effects to undo.
func bookingOrchestrator(res Resource) hub.OrchestratorFunc {
	return func(octx *hub.OrchestrationContext) (any, error) {
		var req BookingRequest
		if err := octx.UnmarshalInput(&req); err != nil {
			return nil, fmt.Errorf("decode booking request: %w", err)
		}
		req.Resource = res
		if req.TripID == "" {
			req.TripID = octx.InstanceID()
		}

		var booking ActivityResult
		if err := octx.CallActivity(bookActivity(res), req, &booking); err != nil {
			return nil, err
		}
		if !booking.Succeeded {
			return SubSagaOutcome{
				Resource:      res,
				Status:        OutcomeFailed,
				FailureReason: booking.Reason,
			}, nil
		}

		var payment ActivityResult
		err := octx.CallActivity(payActivity(res), PaymentRequest{
			Resource:            res,
			BookingConfirmation: booking.ConfirmationID,
			TripID:              req.TripID,
		}, &payment)
		if err != nil {
			return nil, err
		}

		if !payment.Succeeded {
			var cancel ActivityResult
			err := octx.CallActivity(cancelActivity(res), CancelRequest{
				Resource:            res,
				BookingConfirmation: booking.ConfirmationID,
				TripID:              req.TripID,
			}, &cancel)
			if err != nil {
				return nil, err
			}
			return SubSagaOutcome{
				Resource:            res,
				Status:              OutcomeCompensated,
				BookingConfirmation: booking.ConfirmationID,
				CancellationRef:     cancel.ConfirmationID,
				FailureReason:       payment.Reason,
			}, nil
		}

		return SubSagaOutcome{
			Resource:            res,
			Status:              OutcomeCommitted,
			BookingConfirmation: booking.ConfirmationID,
			PaymentConfirmation: payment.ConfirmationID,
			Amount:              payment.Amount,
		}, nil
	}
}
