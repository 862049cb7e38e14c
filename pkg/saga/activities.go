package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfare/wayfare/pkg/hub"
	"github.com/wayfare/wayfare/pkg/logger"
)

// Amount ranges per resource, in whole-trip currency units.
var amountRanges = map[Resource][2]float64{
	ResourceFlight: {150, 900},
	ResourceHotel:  {240, 3500},
	ResourceCar:    {90, 1200},
}

// Activities implements the simulated external systems the sagas call:
// reservation booking, payment processing, and cancellation.
type Activities struct {
	generator Generator
	decider   Decider
	latency   time.Duration
	log       logger.Logger
}

// NewActivities wires the activity handlers.
func NewActivities(generator Generator, decider Decider, latency time.Duration, log logger.Logger) *Activities {
	if decider == nil {
		decider = NeverFail()
	}
	return &Activities{
		generator: generator,
		decider:   decider,
		latency:   latency,
		log:       log,
	}
}

// OperationRates builds the decider rate table from configured
// probabilities. Booking rates are keyed by resource name;
// cancellations are absent so they always succeed.
func OperationRates(booking map[string]float64, payment, generator float64) map[string]float64 {
	rates := map[string]float64{"generator": generator}
	for name, rate := range booking {
		if res, err := ParseResource(name); err == nil {
			rates[bookActivity(res)] = rate
		}
	}
	for _, res := range []Resource{ResourceFlight, ResourceHotel, ResourceCar} {
		rates[payActivity(res)] = payment
	}
	return rates
}

func (a *Activities) simulateLatency(ctx context.Context) error {
	if a.latency <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.latency):
		return nil
	}
}

// book returns the booking handler for one resource. A rejection is a
// successful activity with Succeeded=false; only generator outages
// surface as errors.
func (a *Activities) book(res Resource) hub.ActivityFunc {
	return func(ctx context.Context, inv hub.ActivityInvocation) (any, error) {
		var req BookingRequest
		if err := inv.UnmarshalInput(&req); err != nil {
			return nil, fmt.Errorf("decode booking request: %w", err)
		}
		if err := a.simulateLatency(ctx); err != nil {
			return nil, err
		}

		if a.decider.ShouldFail(bookActivity(res)) {
			reason := rejectionReason(res, req.Destination)
			a.log.InfoContext(ctx, "booking rejected",
				"resource", res, "trip_id", req.TripID, "reason", reason)
			return ActivityResult{Reason: reason}, nil
		}

		conf, err := a.generator.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("generate confirmation: %w", err)
		}
		a.log.InfoContext(ctx, "booking confirmed",
			"resource", res, "trip_id", req.TripID, "confirmation", conf.ID)
		return ActivityResult{Succeeded: true, ConfirmationID: conf.ID}, nil
	}
}

// pay returns the payment handler for one resource. Payment references
// and amounts derive from the instance and task identity, so a retried
// or replayed attempt re-issues the same charge instead of a new one.
func (a *Activities) pay(res Resource) hub.ActivityFunc {
	return func(ctx context.Context, inv hub.ActivityInvocation) (any, error) {
		var req PaymentRequest
		if err := inv.UnmarshalInput(&req); err != nil {
			return nil, fmt.Errorf("decode payment request: %w", err)
		}
		if err := a.simulateLatency(ctx); err != nil {
			return nil, err
		}

		if a.decider.ShouldFail(payActivity(res)) {
			a.log.InfoContext(ctx, "payment declined",
				"resource", res, "booking", req.BookingConfirmation)
			return ActivityResult{Reason: fmt.Sprintf("payment declined for %s", req.BookingConfirmation)}, nil
		}

		bounds := amountRanges[res]
		amount := refValue(bounds[0], bounds[1], inv.InstanceID, inv.TaskID)
		ref := fmt.Sprintf("PAY-%s-%s", res.refCode(), refSuffix(inv.InstanceID, inv.TaskID))
		a.log.InfoContext(ctx, "payment processed",
			"resource", res, "booking", req.BookingConfirmation, "reference", ref, "amount", amount)
		return ActivityResult{Succeeded: true, ConfirmationID: ref, Amount: amount}, nil
	}
}

// cancel returns the cancellation handler for one resource.
// Cancellations have no configured failure rate and always succeed
// against the simulated systems.
func (a *Activities) cancel(res Resource) hub.ActivityFunc {
	return func(ctx context.Context, inv hub.ActivityInvocation) (any, error) {
		var req CancelRequest
		if err := inv.UnmarshalInput(&req); err != nil {
			return nil, fmt.Errorf("decode cancel request: %w", err)
		}
		if err := a.simulateLatency(ctx); err != nil {
			return nil, err
		}

		if a.decider.ShouldFail(cancelActivity(res)) {
			return ActivityResult{Reason: fmt.Sprintf("cancellation rejected for %s", req.BookingConfirmation)}, nil
		}

		ref := fmt.Sprintf("CXL-%s-%s", res.refCode(), refSuffix(inv.InstanceID, inv.TaskID))
		a.log.InfoContext(ctx, "reservation cancelled",
			"resource", res, "booking", req.BookingConfirmation, "reference", ref)
		return ActivityResult{Succeeded: true, ConfirmationID: ref}, nil
	}
}

func rejectionReason(res Resource, destination string) string {
	switch res {
	case ResourceFlight:
		return fmt.Sprintf("no flights available to %s", destination)
	case ResourceHotel:
		return fmt.Sprintf("no rooms available in %s", destination)
	case ResourceCar:
		return fmt.Sprintf("no cars available in %s", destination)
	default:
		return fmt.Sprintf("no availability in %s", destination)
	}
}
